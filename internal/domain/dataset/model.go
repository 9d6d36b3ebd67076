package dataset

// Dataset describes a stored CSV file.
type Dataset struct {
	Filename string   `json:"filename"`
	Size     int      `json:"size"`
	Rows     int      `json:"rows"`
	Columns  []string `json:"columns"`
}

// Table is parsed tabular content: a header and equally wide rows.
type Table struct {
	Header []string
	Rows   [][]string
}
