package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/spf13/cobra"

	"github.com/tabcalc/tablang/internal/format"
)

var (
	fmtWrite     bool   // -w: write result to (source) file instead of stdout
	fmtList      bool   // -l: list files whose formatting differs
	fmtIndent    int    // --indent: number of spaces per indentation level
	fmtUseTabs   bool   // --tabs: use tabs instead of spaces for indentation
	fmtRecursive bool   // -r: process directories recursively
)

var fmtCmd = &cobra.Command{
	Use:   "fmt [files or directories...]",
	Short: "Format TabCalc source files",
	Long: `Format TabCalc source files.

The formatter re-tokenizes the calculation and prints it back with
uppercased keywords, padded operators and indented branches. IF, CASE,
ELSEIF, ELSE, WHEN and END each start a new line; THEN stays at the end
of its condition line. Complex argument lists break one argument per line.

By default, fmt formats the files named on the command line and writes
the result to standard output. If no path is provided, it reads from
standard input.

Examples:
  # Format a single file to stdout
  tablang fmt calc.twbl

  # Format and overwrite files (atomic replace)
  tablang fmt -w calc1.twbl calc2.twbl

  # Format from stdin
  cat calc.twbl | tablang fmt

  # List all files that need formatting
  tablang fmt -l -r calcs/

  # Use tabs for indentation
  tablang fmt --tabs -w calc.twbl`,
	RunE: runFmt,
}

func init() {
	rootCmd.AddCommand(fmtCmd)

	fmtCmd.Flags().BoolVarP(&fmtWrite, "write", "w", false, "write result to (source) file instead of stdout")
	fmtCmd.Flags().BoolVarP(&fmtList, "list", "l", false, "list files whose formatting differs")
	fmtCmd.Flags().BoolVarP(&fmtRecursive, "recursive", "r", false, "process directories recursively")
	fmtCmd.Flags().IntVar(&fmtIndent, "indent", 4, "number of spaces per indentation level")
	fmtCmd.Flags().BoolVar(&fmtUseTabs, "tabs", false, "use tabs instead of spaces for indentation")
}

func runFmt(cmd *cobra.Command, args []string) error {
	if fmtWrite && fmtList {
		return fmt.Errorf("cannot use -w and -l together")
	}

	opts := format.Options{IndentSize: fmtIndent, UseTabs: fmtUseTabs}

	if len(args) == 0 {
		if fmtWrite || fmtList {
			return fmt.Errorf("-w and -l require file arguments")
		}
		input, err := io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
		fmt.Print(format.Format(string(input), opts))
		return nil
	}

	files, err := collectFiles(args)
	if err != nil {
		return err
	}

	for _, file := range files {
		if err := formatFile(file, opts); err != nil {
			return err
		}
	}
	return nil
}

// collectFiles expands the argument list: directories contribute their
// .twbl files, recursively with -r.
func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		if !fmtRecursive {
			entries, err := os.ReadDir(arg)
			if err != nil {
				return nil, err
			}
			for _, entry := range entries {
				if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".twbl") {
					files = append(files, filepath.Join(arg, entry.Name()))
				}
			}
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.HasSuffix(path, ".twbl") {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func formatFile(path string, opts format.Options) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file %s: %w", path, err)
	}
	formatted := format.Format(string(content), opts)

	switch {
	case fmtList:
		if formatted != string(content) {
			fmt.Println(path)
		}
	case fmtWrite:
		if formatted == string(content) {
			return nil
		}
		// atomic replace so a crash never leaves a half-written file
		if err := renameio.WriteFile(path, []byte(formatted), 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	default:
		fmt.Print(formatted)
	}
	return nil
}
