package orchestrator

import (
	"sort"
	"strings"
)

// FileNode is one node in a project file tree. Directory nodes carry
// Children, file nodes carry Content.
type FileNode struct {
	Name        string      `json:"name"`
	Path        string      `json:"path"`
	IsDirectory bool        `json:"is_directory"`
	Content     string      `json:"content,omitempty"`
	Children    []*FileNode `json:"children,omitempty"`
}

// FileTree is an immutable project file tree. Write returns a new tree
// that shares every untouched subtree with the old one, so stages can
// hold a snapshot without seeing later mutations.
type FileTree struct {
	root *FileNode
}

// NewFileTree creates an empty tree.
func NewFileTree() *FileTree {
	return &FileTree{root: &FileNode{Name: "", Path: "", IsDirectory: true}}
}

// Write returns a new tree with the file at path set to content,
// creating intermediate directories. The receiver is unchanged.
func (t *FileTree) Write(path, content string) *FileTree {
	parts := splitPath(path)
	if len(parts) == 0 {
		return t
	}
	return &FileTree{root: writeNode(t.root, parts, path, content)}
}

// writeNode copies the node on the write path; siblings are shared.
func writeNode(node *FileNode, parts []string, fullPath, content string) *FileNode {
	clone := *node
	clone.Children = append([]*FileNode(nil), node.Children...)

	name := parts[0]
	idx := -1
	for i, child := range clone.Children {
		if child.Name == name {
			idx = i
			break
		}
	}

	if len(parts) == 1 {
		leaf := &FileNode{Name: name, Path: fullPath, Content: content}
		if idx >= 0 {
			clone.Children[idx] = leaf
		} else {
			clone.Children = append(clone.Children, leaf)
		}
		return &clone
	}

	var dir *FileNode
	if idx >= 0 && clone.Children[idx].IsDirectory {
		dir = clone.Children[idx]
	} else {
		dir = &FileNode{Name: name, Path: joinPrefix(node.Path, name), IsDirectory: true}
	}
	updated := writeNode(dir, parts[1:], fullPath, content)
	if idx >= 0 {
		clone.Children[idx] = updated
	} else {
		clone.Children = append(clone.Children, updated)
	}
	return &clone
}

// Read returns the content of the file at path.
func (t *FileTree) Read(path string) (string, bool) {
	node := t.find(path)
	if node == nil || node.IsDirectory {
		return "", false
	}
	return node.Content, true
}

func (t *FileTree) find(path string) *FileNode {
	parts := splitPath(path)
	node := t.root
	for _, part := range parts {
		var next *FileNode
		for _, child := range node.Children {
			if child.Name == part {
				next = child
				break
			}
		}
		if next == nil {
			return nil
		}
		node = next
	}
	return node
}

// Files flattens the tree into a path→content map.
func (t *FileTree) Files() map[string]string {
	files := make(map[string]string)
	var walk func(node *FileNode)
	walk = func(node *FileNode) {
		if !node.IsDirectory {
			files[node.Path] = node.Content
			return
		}
		for _, child := range node.Children {
			walk(child)
		}
	}
	walk(t.root)
	return files
}

// Paths returns all file paths in sorted order.
func (t *FileTree) Paths() []string {
	files := t.Files()
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Root exposes the tree for serialization to the project store.
func (t *FileTree) Root() *FileNode {
	return t.root
}

func splitPath(path string) []string {
	var parts []string
	for _, p := range strings.Split(strings.Trim(path, "/"), "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func joinPrefix(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}
