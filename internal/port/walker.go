package port

// FileWalker lists the files to ingest.
type FileWalker interface {
	Walk(root string) ([]FileInfo, error)
	// Expand resolves a mix of file and directory arguments into file paths.
	Expand(paths []string) ([]string, error)
}

type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}
