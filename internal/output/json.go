package output

import (
	"encoding/json"
)

// JSONFormatter renders a view's data as JSON.
type JSONFormatter struct {
	Indent bool
}

// Format renders the view data as JSON.
func (f *JSONFormatter) Format(view *View) (string, error) {
	if view == nil {
		return "", nil
	}

	var (
		data []byte
		err  error
	)

	if f.Indent {
		data, err = json.MarshalIndent(view.Data, "", "  ")
	} else {
		data, err = json.Marshal(view.Data)
	}
	if err != nil {
		return "", err
	}

	return string(data), nil
}
