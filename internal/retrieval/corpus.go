package retrieval

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

var defaultDocuments = []string{
	"Python is a high-level programming language known for its simplicity and readability. It's widely used in web development, data science, artificial intelligence, and automation.",
	"Machine learning is a subset of artificial intelligence that enables computers to learn and make decisions from data without being explicitly programmed for every task.",
	"Data structures are ways of organizing and storing data in a computer so that it can be accessed and modified efficiently. Common examples include arrays, linked lists, stacks, and queues.",
	"Algorithms are step-by-step procedures for solving problems or performing tasks. They are fundamental to computer science and programming.",
	"Web development involves creating websites and web applications using technologies like HTML, CSS, JavaScript, and various frameworks and libraries.",
	"Database management systems (DBMS) are software systems that manage databases. They provide an interface for users to interact with data stored in databases.",
	"Software engineering is the systematic approach to designing, developing, and maintaining software systems. It involves various methodologies and best practices.",
	"Computer networks enable communication between devices. They can be local area networks (LAN), wide area networks (WAN), or the internet.",
	"Operating systems manage computer hardware and software resources. They provide services for computer programs and users.",
	"Cybersecurity involves protecting computer systems, networks, and data from digital attacks, damage, or unauthorized access.",
}

// DefaultDocuments returns a copy of the built-in sample corpus.
func DefaultDocuments() []string {
	return append([]string(nil), defaultDocuments...)
}

// LoadCorpus reads a list of documents from a .json or .yaml/.yml file.
// A missing file is created with the sample corpus.
func LoadCorpus(path string) ([]string, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		docs := DefaultDocuments()
		if err := SaveCorpus(path, docs); err != nil {
			return nil, err
		}
		return docs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return DecodeCorpus(path, b)
}

// DecodeCorpus parses documents, choosing the format by file extension.
func DecodeCorpus(name string, b []byte) ([]string, error) {
	var docs []string
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &docs); err != nil {
			return nil, fmt.Errorf("decode corpus %s: %w", name, err)
		}
	default:
		if err := json.Unmarshal(b, &docs); err != nil {
			return nil, fmt.Errorf("decode corpus %s: %w", name, err)
		}
	}
	return docs, nil
}

// SaveCorpus writes docs as a JSON array.
func SaveCorpus(path string, docs []string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create corpus dir: %w", err)
		}
	}
	if docs == nil {
		docs = []string{}
	}
	b, err := json.Marshal(docs)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write corpus: %w", err)
	}
	return nil
}
