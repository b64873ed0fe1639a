// Package install registers this server in an MCP client's JSON config
// (the "mcpServers" map used by Claude Desktop, Cursor and similar).
package install

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DefaultName is the mcpServers key used when none is given.
const DefaultName = "agentic-developer"

// Entry is one server definition in a client config.
type Entry struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Result describes what Merge did.
type Result struct {
	Created  bool   // the config file did not exist before
	Replaced bool   // an entry with the same name was overwritten
	Backup   string // path of the backup, "" when none was written
}

// Merge adds entry under mcpServers[name] in the config at path. Other
// keys and other servers are left alone. Before the first change to an
// existing file its original content is saved to <path>.bak; later calls
// keep that backup.
func Merge(path, name string, entry Entry) (Result, error) {
	var res Result
	if name == "" {
		name = DefaultName
	}
	if entry.Command == "" {
		return res, errors.New("entry command is required")
	}

	cfg, err := readJSONFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		res.Created = true
		cfg = make(map[string]any)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return res, fmt.Errorf("creating config directory: %w", err)
		}
	case err != nil:
		return res, fmt.Errorf("reading MCP config: %w", err)
	default:
		backup := path + ".bak"
		if _, err := os.Stat(backup); errors.Is(err, os.ErrNotExist) {
			if err := copyFile(path, backup); err != nil {
				return res, fmt.Errorf("saving MCP config backup: %w", err)
			}
			res.Backup = backup
		}
	}

	servers, _ := cfg["mcpServers"].(map[string]any)
	if servers == nil {
		servers = make(map[string]any)
	}
	_, res.Replaced = servers[name]

	// Round-trip through JSON so the stored value has the same shape as
	// entries read from disk.
	raw, err := json.Marshal(entry)
	if err != nil {
		return res, err
	}
	var value map[string]any
	if err := json.Unmarshal(raw, &value); err != nil {
		return res, err
	}
	servers[name] = value
	cfg["mcpServers"] = servers

	if err := writeJSONFile(path, cfg); err != nil {
		return res, fmt.Errorf("writing MCP config: %w", err)
	}
	return res, nil
}

// Servers returns the names registered in the config at path.
func Servers(path string) ([]string, error) {
	cfg, err := readJSONFile(path)
	if err != nil {
		return nil, err
	}
	servers, _ := cfg["mcpServers"].(map[string]any)
	names := make([]string, 0, len(servers))
	for name := range servers {
		names = append(names, name)
	}
	return names, nil
}

func readJSONFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, err
	}
	if result == nil {
		result = make(map[string]any)
	}
	return result, nil
}

func writeJSONFile(path string, data map[string]any) error {
	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')
	return os.WriteFile(path, out, 0o644)
}

// copyFile copies src to dst, preserving the source file's permissions.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}

	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}
