package cron

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileStore persists jobs to a single YAML file. Writes go through a
// temp file and rename.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type jobsFile struct {
	Jobs []*Job `yaml:"jobs"`
}

// Save writes or replaces one job.
func (f *FileStore) Save(job *Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	jobs, err := f.load()
	if err != nil {
		return err
	}

	replaced := false
	for i, j := range jobs {
		if j.ID == job.ID {
			jobs[i] = job
			replaced = true
			break
		}
	}
	if !replaced {
		jobs = append(jobs, job)
	}
	return f.write(jobs)
}

// Delete removes one job.
func (f *FileStore) Delete(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	jobs, err := f.load()
	if err != nil {
		return err
	}
	kept := jobs[:0]
	for _, j := range jobs {
		if j.ID != id {
			kept = append(kept, j)
		}
	}
	return f.write(kept)
}

// LoadAll reads all persisted jobs. A missing file is empty, not an error.
func (f *FileStore) LoadAll() ([]*Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.load()
}

func (f *FileStore) load() ([]*Job, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var file jobsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return file.Jobs, nil
}

func (f *FileStore) write(jobs []*Job) error {
	data, err := yaml.Marshal(jobsFile{Jobs: jobs})
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}
