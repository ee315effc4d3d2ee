package stackradar

import (
	_ "embed"
)

var (
	//go:embed fingerprints_data.json
	fingerprints string
)
