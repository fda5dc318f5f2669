package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tabcalc/tablang/internal/cache"
	"github.com/tabcalc/tablang/internal/catalog"
	"github.com/tabcalc/tablang/internal/config"
	perrors "github.com/tabcalc/tablang/internal/errors"
	"github.com/tabcalc/tablang/internal/parser"
	"github.com/tabcalc/tablang/internal/provider"
	"github.com/tabcalc/tablang/internal/symbol"
)

var (
	parseNoDiagnostics bool
	parseColor         bool
)

var parseCmd = &cobra.Command{
	Use:   "parse [file]",
	Short: "Parse a TabCalc file and print its symbol tree",
	Long: `Parse a TabCalc calculation and print the resulting symbol tree
along with any diagnostics.

Examples:
  # Parse a calculation file
  tablang parse calc.twbl

  # Parse an inline expression
  tablang parse -e "IF [Sales] > 100 THEN 'High' ELSE 'Low' END"

  # Tree only, no diagnostics
  tablang parse --no-diagnostics calc.twbl`,
	Args: cobra.MaximumNArgs(1),
	RunE: parseCalculation,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().StringVarP(&evalExpr, "eval", "e", "", "parse inline code instead of reading from file")
	parseCmd.Flags().BoolVar(&parseNoDiagnostics, "no-diagnostics", false, "print the symbol tree only")
	parseCmd.Flags().BoolVar(&parseColor, "color", false, "colorize diagnostic output")
}

func parseCalculation(cmd *cobra.Command, args []string) error {
	input, filename, err := readInput(args)
	if err != nil {
		return err
	}

	symbols := parser.Parse(input)
	printTree(symbols, 0)

	if parseNoDiagnostics {
		return nil
	}

	cfg := config.Default()
	providers := provider.New(catalog.LoadDefault(), &cfg, cache.New(1))
	diagnostics := providers.ComputeDiagnostics(input, symbols)
	if len(diagnostics) > 0 {
		fmt.Println()
		fmt.Println(perrors.RenderAll(diagnostics, input, filename, parseColor))
	}
	return nil
}

func printTree(symbols []*symbol.Symbol, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, s := range symbols {
		detail := ""
		if len(s.Arguments) > 0 {
			detail = fmt.Sprintf(" args=%d", len(s.Arguments))
		}
		if s.Incomplete {
			detail += " incomplete"
		}
		fmt.Printf("%s%s %q [%d:%d-%d:%d]%s\n",
			indent, s.Kind, s.Name,
			s.Range.Start.Line, s.Range.Start.Column,
			s.Range.End.Line, s.Range.End.Column,
			detail)
		printTree(s.Children, depth+1)
	}
}
