package index

// Document is one source page handed to Build. Its id is its position in
// the slice passed to Build.
type Document struct {
	// Docname is the source path without extension ("numpy_introduction").
	Docname string
	// Filename is the source path with extension ("numpy_introduction.ipynb").
	// An empty Filename defaults to Docname.
	Filename string
	Title    string
	// Text is the plain text to index. It is not retained by the Index.
	Text string
}

// DocInfo is the metadata the index keeps for a document.
type DocInfo struct {
	ID       int    `json:"id"`
	Docname  string `json:"docname"`
	Filename string `json:"filename"`
	Title    string `json:"title"`
}
