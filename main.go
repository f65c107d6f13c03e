// Compiler driver. The driver forks itself with -cc1 for the actual
// compilation of each input file, then hands the generated assembly
// to the system assembler and, unless told otherwise, the linker.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
)

var opt_E bool
var opt_S bool
var opt_c bool
var opt_g bool
var opt_cc1 bool
var opt_hash_hash_hash bool
var opt_fpic bool
var opt_fcommon = true
var opt_func_sections bool
var opt_data_sections bool
var opt_static bool
var opt_shared bool
var opt_o string

var includePaths []string
var iquotePaths []string

var inputPaths []string
var tmpFiles []string

var cc1Input string
var cc1Output string

// -D and -U are applied, in order, after the predefined macros.
type macroEdit struct {
	isDef bool
	arg   string
}

var macroEdits []macroEdit

// Options like -DFOO=1 and -Idir are accepted both joined and
// space-separated; normalize the joined forms so the flag parser only
// sees separated ones.
func normalizeArgs(args []string) []string {
	joined := []string{"-I", "-D", "-U", "-o", "-x"}
	var out []string

	for _, arg := range args {
		if arg == "-###" {
			out = append(out, "-hash-hash-hash")
			continue
		}

		done := false
		for _, prefix := range joined {
			if len(arg) > len(prefix) && strings.HasPrefix(arg, prefix) && arg[len(prefix)] != '=' {
				out = append(out, prefix, arg[len(prefix):])
				done = true
				break
			}
		}
		if !done {
			out = append(out, arg)
		}
	}
	return out
}

func main() {
	app := &cli.App{
		Name:            "occ",
		Usage:           "C compiler",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "o", Usage: "output file"},
			&cli.BoolFlag{Name: "c", Usage: "compile and assemble only"},
			&cli.BoolFlag{Name: "S", Usage: "emit assembly"},
			&cli.BoolFlag{Name: "E", Usage: "preprocess only"},
			&cli.BoolFlag{Name: "g", Usage: "emit line markers"},
			&cli.StringSliceFlag{Name: "I", Usage: "add include path"},
			&cli.StringSliceFlag{Name: "iquote", Usage: "add quoted include path"},
			&cli.StringSliceFlag{Name: "idirafter", Usage: "add late include path"},
			&cli.StringSliceFlag{Name: "D", Usage: "define macro"},
			&cli.StringSliceFlag{Name: "U", Usage: "undefine macro"},
			&cli.StringSliceFlag{Name: "include", Usage: "include file before the main source"},
			&cli.StringFlag{Name: "x", Usage: "input language"},
			&cli.BoolFlag{Name: "fpic"},
			&cli.BoolFlag{Name: "fPIC"},
			&cli.BoolFlag{Name: "fcommon", Value: true},
			&cli.BoolFlag{Name: "fno-common"},
			&cli.BoolFlag{Name: "ffunction-sections"},
			&cli.BoolFlag{Name: "fdata-sections"},
			&cli.BoolFlag{Name: "static"},
			&cli.BoolFlag{Name: "shared"},
			&cli.BoolFlag{Name: "hash-hash-hash", Hidden: true},
			&cli.BoolFlag{Name: "cc1", Hidden: true},
			&cli.StringFlag{Name: "cc1-input", Hidden: true},
			&cli.StringFlag{Name: "cc1-output", Hidden: true},
		},
		Action: run,
	}

	if err := app.Run(normalizeArgs(os.Args)); err != nil {
		fail("%v", err)
	}
}

func run(c *cli.Context) error {
	opt_E = c.Bool("E")
	opt_S = c.Bool("S")
	opt_c = c.Bool("c")
	opt_g = c.Bool("g")
	opt_cc1 = c.Bool("cc1")
	opt_hash_hash_hash = c.Bool("hash-hash-hash")
	opt_fpic = c.Bool("fpic") || c.Bool("fPIC")
	opt_fcommon = c.Bool("fcommon") && !c.Bool("fno-common")
	opt_func_sections = c.Bool("ffunction-sections")
	opt_data_sections = c.Bool("fdata-sections")
	opt_static = c.Bool("static")
	opt_shared = c.Bool("shared")
	opt_o = c.String("o")
	cc1Input = c.String("cc1-input")
	cc1Output = c.String("cc1-output")

	iquotePaths = c.StringSlice("iquote")
	includePaths = append(includePaths, c.StringSlice("I")...)
	includePaths = append(includePaths, c.StringSlice("idirafter")...)

	for _, d := range c.StringSlice("D") {
		macroEdits = append(macroEdits, macroEdit{isDef: true, arg: d})
	}
	for _, u := range c.StringSlice("U") {
		macroEdits = append(macroEdits, macroEdit{isDef: false, arg: u})
	}

	optInclude := c.StringSlice("include")

	if opt_cc1 {
		cc1(optInclude)
		return nil
	}

	inputPaths = c.Args().Slice()
	if len(inputPaths) == 0 {
		return fmt.Errorf("no input files")
	}

	if len(inputPaths) > 1 && opt_o != "" && (opt_c || opt_S || opt_E) {
		return fmt.Errorf("cannot specify '-o' with '-c', '-S' or '-E' with multiple files")
	}

	defer cleanup()

	var ldArgs []string

	for _, input := range inputPaths {
		var output string
		if opt_o != "" {
			output = opt_o
		} else if opt_S {
			output = replaceExtension(input, ".s")
		} else {
			output = replaceExtension(input, ".o")
		}

		switch {
		case strings.HasSuffix(input, ".o"):
			ldArgs = append(ldArgs, input)
			continue
		case strings.HasSuffix(input, ".s"):
			if opt_S || opt_E {
				continue
			}
			if opt_c {
				assemble(input, output)
				continue
			}
			obj := createTmpFile()
			assemble(input, obj)
			ldArgs = append(ldArgs, obj)
			continue
		}

		// Handle .c
		if opt_E {
			runCC1(input, "-")
			continue
		}
		if opt_S {
			runCC1(input, output)
			continue
		}

		// Compile and assemble.
		tmp := createTmpFile()
		runCC1(input, tmp)
		if opt_c {
			assemble(tmp, output)
			continue
		}

		obj := createTmpFile()
		assemble(tmp, obj)
		ldArgs = append(ldArgs, obj)
	}

	if len(ldArgs) > 0 && !opt_c && !opt_S && !opt_E {
		output := opt_o
		if output == "" {
			output = "a.out"
		}
		runLinker(ldArgs, output)
	}
	return nil
}

// Fork the current executable with -cc1 to compile a single file.
func runCC1(input string, output string) {
	args := append([]string{}, os.Args...)
	args = append(args, "-cc1", "-cc1-input", input)
	if output != "" {
		args = append(args, "-cc1-output", output)
	}
	runSubprocess(args)
}

func runSubprocess(args []string) {
	// If -### is given, dump the subprocess's command line.
	if opt_hash_hash_hash {
		fmt.Fprintln(os.Stderr, strings.Join(args, " "))
	}

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			cleanup()
			os.Exit(1)
		}
		cleanup()
		fail("exec %s: %v", args[0], err)
	}
}

func assemble(input string, output string) {
	runSubprocess([]string{"as", "--noexecstack", "-o", output, input})
}

func runLinker(inputs []string, output string) {
	args := []string{"gcc", "-o", output}
	if opt_static {
		args = append(args, "-static")
	}
	if opt_shared {
		args = append(args, "-shared")
	}
	args = append(args, inputs...)
	runSubprocess(args)
}

func replaceExtension(path string, ext string) string {
	base := filepath.Base(path)
	if idx := strings.LastIndexByte(base, '.'); idx > 0 {
		base = base[:idx]
	}
	return base + ext
}

func createTmpFile() string {
	f, err := os.CreateTemp("", "occ-*.s")
	if err != nil {
		fail("cannot create temporary file: %v", err)
	}
	f.Close()
	tmpFiles = append(tmpFiles, f.Name())
	return f.Name()
}

func cleanup() {
	for _, path := range tmpFiles {
		os.Remove(path)
	}
	tmpFiles = nil
}

func openOutput(path string) *os.File {
	if path == "" || path == "-" {
		return os.Stdout
	}
	f, err := os.Create(path)
	if err != nil {
		fail("cannot open output file: %s: %v", path, err)
	}
	return f
}

// Print tokens to stdout for -E. Newlines and spacing are
// reconstructed from the token flags.
func printTokens(tok *Token, out *os.File) {
	line := 1
	for ; tok != nil && tok.Kind != TK_EOF; tok = tok.Next {
		if tok.Kind == TK_FMARK {
			fmt.Fprintf(out, "\n# %d \"%s\"\n", tok.LineNo, tok.File.Name)
			line = 1
			continue
		}
		if line > 1 && tok.AtBOL {
			fmt.Fprintln(out)
		}
		if tok.HasSpace && !tok.AtBOL {
			fmt.Fprint(out, " ")
		}
		fmt.Fprint(out, tok.Text())
		line++
	}
	fmt.Fprintln(out)
}

// The -cc1 entry point: one translation unit in, assembly text out.
func cc1(optInclude []string) {
	initMacros()

	// Apply -D and -U in command-line order.
	for _, e := range macroEdits {
		if !e.isDef {
			undefMacro(e.arg)
			continue
		}
		if name, val, ok := strings.Cut(e.arg, "="); ok {
			defineMacro(name, val)
		} else {
			defineMacro(e.arg, "1")
		}
	}

	tok := tokenizeFile(cc1Input, nil)
	if tok == nil {
		fail("%s: cannot open file", cc1Input)
	}

	// Process -include files before the main source.
	for i := len(optInclude) - 1; i >= 0; i-- {
		path := optInclude[i]
		if !fileExists(path) {
			if resolved := searchIncludePaths(path); resolved != "" {
				path = resolved
			}
		}
		var end *Token
		tok2 := tokenizeFile(path, &end)
		if tok2 == nil {
			fail("-include: %s: cannot open file", path)
		}
		if end != nil {
			end.Next = tok
			tok = tok2
		}
	}

	tok = preprocess(tok, cc1Input)

	out := openOutput(cc1Output)
	defer out.Close()

	// If -E is given, print out preprocessed C code as a result.
	if opt_E {
		printTokens(tok, out)
		return
	}

	prog := parse(tok)

	var text []string
	codegen(prog, &text)
	for _, line := range text {
		fmt.Fprintln(out, line)
	}
}
