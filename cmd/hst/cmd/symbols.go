package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"fxHistory/internal/mt4"
	"fxHistory/internal/ports"
)

const symbolsFile = "symbols.raw"

type symbolsOptions struct {
	file       string
	count      bool
	listFields bool
	fields     []string
	output     string
}

func newSymbolsCmd() *cobra.Command {
	opts := &symbolsOptions{}
	cmd := &cobra.Command{
		Use:   "symbols [+FIELD|++ ...]",
		Short: "List instrument metadata of symbols.raw files",
		Long: `List the SYMBOL records of MetaTrader "symbols.raw" files.

FILE may be a file, a directory (its symbols.raw is used) or a pattern matching several files.
Fields are selected with +NAME (include), ++ (include all) and -NAME (exclude, via --fields).
The symbol name is always shown.

Examples:
  hst symbols -f ./servers/MyBroker
  hst symbols -f './servers/*/symbols.raw' -c
  hst symbols +digits +spread
  hst symbols --fields ++,-description -o yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, a := range args {
				if !strings.HasPrefix(a, "+") {
					return fmt.Errorf("invalid field specifier: %s", a)
				}
			}
			return runSymbols(cmd.OutOrStdout(), cmd.ErrOrStderr(), opts, append(args, opts.fields...))
		},
	}
	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "file(s) to analyze (default \"symbols.raw\")")
	cmd.Flags().BoolVarP(&opts.count, "count", "c", false, "count symbols of the file(s)")
	cmd.Flags().BoolVarP(&opts.listFields, "list", "l", false, "list available SYMBOL fields")
	cmd.Flags().StringSliceVar(&opts.fields, "fields", nil, "field specifiers: +NAME, ++, -NAME")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "table", "output format: table or yaml")
	return cmd
}

func runSymbols(out, errOut io.Writer, opts *symbolsOptions, specs []string) error {
	if opts.listFields {
		title := "Available symbol fields:"
		fmt.Fprintln(out, title)
		fmt.Fprintln(out, strings.Repeat("-", len(title)))
		for _, name := range mt4.FieldNames() {
			fmt.Fprintln(out, upperFirst(name))
		}
		return nil
	}

	files, err := resolveSymbolFiles(opts.file)
	if err != nil {
		return err
	}
	fields, err := selectFields(specs)
	if err != nil {
		return err
	}

	reports := make([]symbolReport, 0, len(files))
	for _, file := range files {
		reports = append(reports, collectSymbols(file, fields, opts.count))
	}
	for _, r := range reports {
		for _, w := range r.Warnings {
			fmt.Fprintf(errOut, "warning: %s: %s\n", r.File, w)
		}
	}

	switch opts.output {
	case "yaml":
		return writeSymbolsYAML(out, reports, fields, opts.count)
	case "table":
		writeSymbolsTable(out, reports, fields, opts.count)
		return nil
	default:
		return fmt.Errorf("unknown output format %q", opts.output)
	}
}

// selectFields applies field specifiers to the canonical field list. The name field is always first.
func selectFields(specs []string) ([]string, error) {
	all := mt4.FieldNames()
	on := make(map[string]bool, len(all))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		switch {
		case spec == "++":
			for _, name := range all {
				on[name] = true
			}
		case strings.HasPrefix(spec, "+") || strings.HasPrefix(spec, "-"):
			if len(spec) == 1 {
				return nil, fmt.Errorf("invalid field specifier: %s", spec)
			}
			// Unknown names are ignored.
			if name, ok := mt4.LookupFieldName(spec[1:]); ok {
				on[name] = spec[0] == '+'
			}
		default:
			return nil, fmt.Errorf("invalid field specifier: %s", spec)
		}
	}
	fields := []string{"name"}
	for _, name := range all {
		if name != "name" && on[name] {
			fields = append(fields, name)
		}
	}
	return fields, nil
}

// resolveSymbolFiles expands the -f argument into symbols.raw files.
func resolveSymbolFiles(arg string) ([]string, error) {
	if arg == "" {
		if st, err := os.Stat(symbolsFile); err != nil || st.IsDir() {
			return nil, fmt.Errorf("file not found: %s", symbolsFile)
		}
		return []string{symbolsFile}, nil
	}
	if st, err := os.Stat(arg); err == nil {
		if !st.IsDir() {
			return []string{arg}, nil
		}
		file := filepath.Join(arg, symbolsFile)
		if st, err := os.Stat(file); err != nil || st.IsDir() {
			return nil, fmt.Errorf("file not found: %s", file)
		}
		return []string{file}, nil
	}

	pattern := arg
	if strings.HasSuffix(pattern, "/") || strings.HasSuffix(pattern, `\`) {
		pattern += symbolsFile
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", arg, err)
	}
	var files []string
	matchesDir := false
	for _, m := range matches {
		if st, err := os.Stat(m); err == nil && st.IsDir() {
			matchesDir = true
			continue
		}
		files = append(files, m)
	}
	if len(files) == 0 {
		msg := "file(s) not found: " + arg
		if matchesDir {
			msg += ` (enter a trailing slash "/" to search directories)`
		}
		return nil, errors.New(msg)
	}
	sort.SliceStable(files, func(i, j int) bool { return compareFileNames(files[i], files[j]) < 0 })
	return files, nil
}

// compareFileNames orders paths case-insensitively with directory separators sorting first, so a
// directory's files come before sibling names that extend the directory name.
func compareFileNames(a, b string) int {
	if a == b {
		return 0
	}
	la := strings.ToLower(filepath.ToSlash(a))
	lb := strings.ToLower(filepath.ToSlash(b))
	n := min(len(la), len(lb))
	for i := 0; i < n; i++ {
		ca, cb := la[i], lb[i]
		if ca == cb {
			continue
		}
		if ca == '/' {
			return -1
		}
		if cb == '/' {
			return 1
		}
		if ca > cb {
			return 1
		}
		return -1
	}
	if len(a) == len(b) {
		return strings.Compare(a, b)
	}
	return strings.Compare(la, lb)
}

type symbolReport struct {
	File     string
	Count    int
	Rows     [][]string
	Warnings []string
	Err      error
}

func collectSymbols(file string, fields []string, countOnly bool) symbolReport {
	r := symbolReport{File: file}
	records, trailing, err := mt4.ReadInstrumentFile(file)
	if err != nil {
		if errors.Is(err, ports.ErrFormat) {
			r.Err = fmt.Errorf("invalid or unsupported format: %w", err)
		} else {
			r.Err = err
		}
		return r
	}
	if trailing > 0 {
		r.Warnings = append(r.Warnings, fmt.Sprintf("file contains %d trailing bytes", trailing))
	}
	r.Count = len(records)
	if countOnly {
		return r
	}
	for i := range records {
		row := make([]string, len(fields))
		for j, name := range fields {
			v, _ := records[i].Field(name)
			row[j] = formatFieldValue(v)
		}
		r.Rows = append(r.Rows, row)
	}
	return r
}

// formatFieldValue renders a field for output. Untyped regions are shown as "?".
func formatFieldValue(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return "?"
	}
}

func writeSymbolsTable(out io.Writer, reports []symbolReport, fields []string, countOnly bool) {
	if countOnly {
		width := 0
		for _, r := range reports {
			width = max(width, len(r.File))
		}
		for _, r := range reports {
			if r.Err != nil {
				fmt.Fprintf(out, "%-*s %v\n", width+1, r.File+":", r.Err)
				continue
			}
			fmt.Fprintf(out, "%-*s %d symbols\n", width+1, r.File+":", r.Count)
		}
		return
	}

	headers := make([]string, len(fields))
	widths := make([]int, len(fields))
	for i, name := range fields {
		if name == "name" {
			name = "symbol"
		}
		headers[i] = upperFirst(name)
		widths[i] = len(headers[i])
	}
	for _, r := range reports {
		for _, row := range r.Rows {
			for i, v := range row {
				widths[i] = max(widths[i], len(v))
			}
		}
	}
	header := formatRow(headers, widths)

	sepLen := len(header)
	for i, r := range reports {
		sepLen = max(sepLen, len(r.File))
		separator := strings.Repeat("-", sepLen)

		fmt.Fprintln(out, r.File+":")
		if r.Err != nil {
			fmt.Fprintln(out, r.Err)
		} else {
			fmt.Fprintln(out, header)
			fmt.Fprintln(out, separator)
			for _, row := range r.Rows {
				fmt.Fprintln(out, formatRow(row, widths))
			}
			fmt.Fprintln(out, separator)
			fmt.Fprintf(out, "%d symbol%s\n", r.Count, plural(r.Count))
		}
		if i < len(reports)-1 {
			fmt.Fprintf(out, "%s\n\n\n", strings.Repeat("=", sepLen))
		}
	}
}

func formatRow(values []string, widths []int) string {
	cells := make([]string, len(values))
	for i, v := range values {
		cells[i] = fmt.Sprintf("%-*s", widths[i], v)
	}
	return strings.TrimRight(strings.Join(cells, "  "), " ")
}

func writeSymbolsYAML(out io.Writer, reports []symbolReport, fields []string, countOnly bool) error {
	doc := &yaml.Node{Kind: yaml.SequenceNode}
	for _, r := range reports {
		file := mappingNode()
		addScalar(file, "file", r.File)
		if r.Err != nil {
			addScalar(file, "error", r.Err.Error())
			doc.Content = append(doc.Content, file)
			continue
		}
		addScalar(file, "count", strconv.Itoa(r.Count))
		if len(r.Warnings) > 0 {
			warnings := &yaml.Node{Kind: yaml.SequenceNode}
			for _, w := range r.Warnings {
				warnings.Content = append(warnings.Content, scalarNode(w))
			}
			file.Content = append(file.Content, scalarNode("warnings"), warnings)
		}
		if !countOnly {
			symbols := &yaml.Node{Kind: yaml.SequenceNode}
			for _, row := range r.Rows {
				sym := mappingNode()
				for i, name := range fields {
					addScalar(sym, name, row[i])
				}
				symbols.Content = append(symbols.Content, sym)
			}
			file.Content = append(file.Content, scalarNode("symbols"), symbols)
		}
		doc.Content = append(doc.Content, file)
	}

	enc := yaml.NewEncoder(out)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}

func mappingNode() *yaml.Node { return &yaml.Node{Kind: yaml.MappingNode} }

func scalarNode(v string) *yaml.Node { return &yaml.Node{Kind: yaml.ScalarNode, Value: v} }

func addScalar(m *yaml.Node, key, value string) {
	m.Content = append(m.Content, scalarNode(key), scalarNode(value))
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
