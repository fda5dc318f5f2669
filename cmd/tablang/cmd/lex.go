package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tabcalc/tablang/internal/lexer"
	"github.com/tabcalc/tablang/pkg/token"
)

var (
	evalExpr   string
	showPos    bool
	showType   bool
	onlyErrors bool
)

var lexCmd = &cobra.Command{
	Use:   "lex [file]",
	Short: "Tokenize a TabCalc file or expression",
	Long: `Tokenize (lex) a TabCalc calculation and print the resulting tokens.

This command is useful for debugging the lexer and understanding how
calculation source is tokenized.

Examples:
  # Tokenize a calculation file
  tablang lex calc.twbl

  # Tokenize an inline expression
  tablang lex -e "IF [Sales] > 100 THEN 'High' END"

  # Show token types and positions
  tablang lex --show-type --show-pos calc.twbl

  # Show only errors (unexpected tokens)
  tablang lex --only-errors calc.twbl`,
	Args: cobra.MaximumNArgs(1),
	RunE: lexCalculation,
}

func init() {
	rootCmd.AddCommand(lexCmd)

	lexCmd.Flags().StringVarP(&evalExpr, "eval", "e", "", "tokenize inline code instead of reading from file")
	lexCmd.Flags().BoolVar(&showPos, "show-pos", false, "show token positions (line:column)")
	lexCmd.Flags().BoolVar(&showType, "show-type", false, "show token type names")
	lexCmd.Flags().BoolVar(&onlyErrors, "only-errors", false, "show only unexpected tokens and scan errors")
}

func lexCalculation(cmd *cobra.Command, args []string) error {
	input, filename, err := readInput(args)
	if err != nil {
		return err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbose {
		fmt.Printf("Tokenizing: %s\n", filename)
		fmt.Printf("Input length: %d bytes\n", len(input))
		fmt.Println("---")
	}

	l := lexer.New(input)
	for {
		tok := l.NextToken()
		if tok.Type == token.EOF {
			break
		}
		if onlyErrors && tok.Type != token.UNEXPECTED {
			continue
		}

		line := fmt.Sprintf("%q", tok.Literal)
		if showType {
			line = fmt.Sprintf("%-12s %s", tok.Type, line)
		}
		if showPos {
			line = fmt.Sprintf("%3d:%-3d %s", tok.Pos.Line, tok.Pos.Column, line)
		}
		fmt.Println(line)
	}

	for _, scanErr := range l.Errors() {
		fmt.Fprintf(os.Stderr, "error at %d:%d: %s\n", scanErr.Pos.Line, scanErr.Pos.Column, scanErr.Message)
	}
	return nil
}

// readInput resolves the command input: -e expression, a file path, or an
// error when neither is given.
func readInput(args []string) (input, filename string, err error) {
	if evalExpr != "" {
		return evalExpr, "<eval>", nil
	}
	if len(args) == 1 {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return "", "", fmt.Errorf("failed to read file %s: %w", args[0], err)
		}
		return string(content), args[0], nil
	}
	return "", "", fmt.Errorf("either provide a file path or use -e flag for inline code")
}
