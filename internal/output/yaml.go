package output

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter renders a view's data as YAML.
type YAMLFormatter struct{}

// Format renders the view data as YAML.
func (f *YAMLFormatter) Format(view *View) (string, error) {
	if view == nil {
		return "", nil
	}
	data, err := yaml.Marshal(view.Data)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(data), "\n"), nil
}
