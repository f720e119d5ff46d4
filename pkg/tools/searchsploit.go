package tools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/harun/bounter/pkg/sandbox"
	"github.com/harun/bounter/pkg/toolexecutor"
)

const (
	defaultMaxResults = 20
	maxMaxResults     = 100
)

// ExploitEntry is one searchsploit hit.
type ExploitEntry struct {
	EDBID    string `json:"edb_id"`
	Title    string `json:"title"`
	Author   string `json:"author"`
	Type     string `json:"type"`
	Platform string `json:"platform"`
	Date     string `json:"date"`
	Verified string `json:"verified"`
	Path     string `json:"path"`
}

func (s *Suite) searchsploitTool() toolexecutor.ToolDefinition {
	return toolexecutor.ToolDefinition{
		Name:        ToolSearchsploit,
		Description: "Search the local Exploit-DB copy with searchsploit, or mirror an exploit into the download directory and optionally run a command against it.",
		Parameters: []toolexecutor.ToolParameter{
			{Name: "action", Type: "string", Description: "search or mirror", Enum: []string{"search", "mirror"}, Default: "search"},
			{Name: "query", Type: "string", Description: "Search terms, e.g. product and version"},
			{Name: "cve_id", Type: "string", Description: "CVE identifier to search for"},
			{Name: "edb_id", Type: "string", Description: "Exploit-DB id to mirror"},
			{Name: "max_results", Type: "integer", Description: "Maximum results to return (1-100)", Default: defaultMaxResults},
			{Name: "mirror_directory", Type: "string", Description: "Directory to copy the exploit into"},
			{Name: "execute_command", Type: "string", Description: "Shell command to run after mirroring"},
		},
		Timeout: 2*s.opts.CommandTimeout + toolSlack,
		Handler: s.searchsploit,
	}
}

func (s *Suite) searchsploit(ctx context.Context, args map[string]any) (*toolexecutor.ToolResult, error) {
	switch action := strings.ToLower(toolexecutor.StringArg(args, "action", "search")); action {
	case "search":
		return s.searchExploits(ctx, args)
	case "mirror":
		return s.mirrorExploit(ctx, args)
	default:
		return nil, fmt.Errorf("unsupported action %q, use 'search' or 'mirror'", action)
	}
}

func (s *Suite) searchExploits(ctx context.Context, args map[string]any) (*toolexecutor.ToolResult, error) {
	query := toolexecutor.StringArg(args, "query", "")
	cve := toolexecutor.StringArg(args, "cve_id", "")
	if query == "" && cve == "" {
		return nil, errors.New("either 'query' or 'cve_id' is required for search")
	}
	limit, err := toolexecutor.IntArg(args, "max_results", defaultMaxResults)
	if err != nil {
		return nil, err
	}
	limit = clampResults(limit)

	argv := []string{"--json"}
	if cve != "" {
		argv = append(argv, "--cve", cve)
	}
	if query != "" {
		argv = append(argv, query)
	}

	result := s.runLocal(ctx, s.opts.SearchsploitPath, argv)
	if !result.Success {
		result.Error = "searchsploit search failed: " + result.Error
		return result, nil
	}

	entries, total, err := parseSearchResults(result.Stdout, limit)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		return result, nil
	}

	result.Output = map[string]any{
		"action":           "search",
		"total_results":    total,
		"returned_results": len(entries),
		"results":          entries,
	}
	result.Stdout = formatEntries(entries, total)
	return result, nil
}

func (s *Suite) mirrorExploit(ctx context.Context, args map[string]any) (*toolexecutor.ToolResult, error) {
	edbID := toolexecutor.StringArg(args, "edb_id", "")
	if edbID == "" {
		return nil, errors.New("'edb_id' is required when action='mirror'")
	}

	result := s.runLocal(ctx, s.opts.SearchsploitPath, []string{"-p", edbID})
	if !result.Success {
		result.Error = "unable to resolve exploit path: " + result.Error
		return result, nil
	}

	source := extractPath(result.Stdout)
	if source == "" {
		result.Success = false
		result.Error = "searchsploit did not return a usable path"
		return result, nil
	}

	destDir := toolexecutor.StringArg(args, "mirror_directory", s.opts.DownloadDir)
	dest, err := copyExploit(source, destDir)
	if err != nil {
		result.Success = false
		result.Error = err.Error()
		return result, nil
	}
	log.Info().Str("edb_id", edbID).Str("path", dest).Msg("Exploit mirrored")

	output := map[string]any{
		"action":      "mirror",
		"edb_id":      edbID,
		"source_path": source,
		"copied_to":   dest,
	}
	result.Stdout = fmt.Sprintf("mirrored exploit %s -> %s", source, dest)

	if follow := toolexecutor.StringArg(args, "execute_command", ""); follow != "" {
		exec := s.runShell(ctx, s.shell, follow, s.opts.CommandTimeout)
		output["execution"] = exec.ResponseMap()
		result.Command += " && " + follow
		result.Stdout += "\n" + exec.Stdout
		result.Stderr = exec.Stderr
		if !exec.Success {
			result.Success = false
			result.ReturnCode = exec.ReturnCode
			result.Error = exec.Error
		}
	}

	result.Output = output
	return result, nil
}

// runLocal runs a helper binary on the host without a shell.
func (s *Suite) runLocal(ctx context.Context, bin string, argv []string) *toolexecutor.ToolResult {
	command := shellJoin(append([]string{bin}, argv...))
	res, err := s.local.Execute(ctx, sandbox.ExecuteRequest{Command: bin, Args: argv, Timeout: s.opts.CommandTimeout})
	result := &toolexecutor.ToolResult{
		Command: command,
		Stdout:  strings.TrimSpace(string(res.Stdout)),
		Stderr:  strings.TrimSpace(string(res.Stderr)),
	}
	switch {
	case err != nil:
		result.Error = err.Error()
	case res.Error != nil:
		result.Error = res.Error.Error()
		result.ReturnCode = intPtr(res.ExitCode)
	default:
		result.ReturnCode = intPtr(res.ExitCode)
		result.Success = res.ExitCode == 0
		if !result.Success {
			result.Error = fmt.Sprintf("exit status %d", res.ExitCode)
		}
	}
	return result
}

func clampResults(n int) int {
	if n <= 0 {
		n = defaultMaxResults
	}
	if n > maxMaxResults {
		n = maxMaxResults
	}
	return n
}

// parseSearchResults merges exploits and shellcodes from searchsploit --json.
func parseSearchResults(raw string, limit int) ([]ExploitEntry, int, error) {
	if strings.TrimSpace(raw) == "" {
		raw = "{}"
	}
	if !gjson.Valid(raw) {
		return nil, 0, errors.New("unable to parse searchsploit JSON output")
	}
	doc := gjson.Parse(raw)

	var rows []gjson.Result
	rows = append(rows, doc.Get("RESULTS_EXPLOIT").Array()...)
	rows = append(rows, doc.Get("RESULTS_SHELLCODE").Array()...)

	entries := make([]ExploitEntry, 0, min(limit, len(rows)))
	for _, row := range rows {
		if len(entries) == limit {
			break
		}
		entries = append(entries, ExploitEntry{
			EDBID:    row.Get("EDB-ID").String(),
			Title:    row.Get("Title").String(),
			Author:   row.Get("Author").String(),
			Type:     row.Get("Type").String(),
			Platform: row.Get("Platform").String(),
			Date:     firstOf(row, "Date_Published", "Date"),
			Verified: row.Get("Verified").String(),
			Path:     row.Get("Path").String(),
		})
	}
	return entries, len(rows), nil
}

func firstOf(row gjson.Result, keys ...string) string {
	for _, k := range keys {
		if v := row.Get(k); v.Exists() {
			return v.String()
		}
	}
	return ""
}

func formatEntries(entries []ExploitEntry, total int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d results (%d shown)", total, len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%s | %s | %s", e.EDBID, e.Title, e.Path)
	}
	return b.String()
}

// extractPath finds the exploit path in `searchsploit -p` output.
func extractPath(stdout string) string {
	for _, line := range strings.Split(stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > 5 && strings.EqualFold(line[:5], "path:") {
			if p := strings.TrimSpace(line[5:]); p != "" {
				return p
			}
		}
		if strings.HasPrefix(line, "/") {
			return line
		}
	}
	return ""
}

func copyExploit(source, destDir string) (string, error) {
	info, err := os.Stat(source)
	if err != nil {
		return "", fmt.Errorf("exploit file not found: %s", source)
	}
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download directory: %w", err)
	}

	in, err := os.Open(source)
	if err != nil {
		return "", err
	}
	defer in.Close()

	dest := filepath.Join(destDir, filepath.Base(source))
	out, err := os.OpenFile(dest, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return dest, os.Chtimes(dest, info.ModTime(), info.ModTime())
}

// shellJoin renders argv for logs, quoting where the shell would need it.
func shellJoin(argv []string) string {
	quoted := make([]string, len(argv))
	for i, a := range argv {
		if a != "" && !strings.ContainsAny(a, " \t\n'\"\\$`|&;<>()*?[]{}!#~") {
			quoted[i] = a
			continue
		}
		quoted[i] = "'" + strings.ReplaceAll(a, "'", `'"'"'`) + "'"
	}
	return strings.Join(quoted, " ")
}
