// Tokenizer. Turns the raw bytes of one file into a linked list of
// tokens. Numeric literals are first read as TK_PP_NUM and converted
// to typed TK_NUM tokens after preprocessing, as the C spec requires.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Input file list, in the order files were opened.
var inputFiles []*File
var fileNoCounter int

func getInputFiles() []*File {
	return inputFiles
}

func newFile(name string, fileNo int, contents []byte) *File {
	f := &File{Name: name, FileNo: fileNo, Contents: contents}
	f.DisplayFile = f
	return f
}

// Reports an error message in the following format and exits.
//
// foo.c:10:5: error: <message>
//   x = y + + 5;
//           ^
func verrorAt(filename string, input []byte, lineNo int, loc int, msg string) {
	// Find the line containing `loc`.
	line := loc
	for line > 0 && input[line-1] != '\n' {
		line--
	}
	end := loc
	for end < len(input) && input[end] != '\n' {
		end++
	}

	col := loc - line + 1
	fmt.Fprintf(os.Stderr, "%s:%d:%d: error: %s\n", filename, lineNo, col, msg)
	fmt.Fprintf(os.Stderr, "  %s\n", string(input[line:end]))
	fmt.Fprintf(os.Stderr, "  %s^\n", strings.Repeat(" ", col-1))
}

func errorAt(file *File, loc int, msg string) {
	lineNo := 1
	for i := 0; i < loc; i++ {
		if file.Contents[i] == '\n' {
			lineNo++
		}
	}
	verrorAt(file.Name, file.Contents, lineNo, loc, msg)
	os.Exit(1)
}

func errorTok(tok *Token, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	verrorAt(tok.File.Name, tok.File.Contents, tok.LineNo, tok.Loc, msg)
	os.Exit(1)
}

func warnTok(tok *Token, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	line := tok.Loc
	src := tok.File.Contents
	for line > 0 && src[line-1] != '\n' {
		line--
	}
	fmt.Fprintf(os.Stderr, "%s:%d:%d: warning: %s\n", tok.File.Name, tok.LineNo, tok.Loc-line+1, msg)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func (t *Token) isHash() bool {
	return t.AtBOL && t.isEqual("#")
}

var keywords = map[string]struct{}{
	"return": {}, "if": {}, "else": {}, "for": {}, "while": {}, "do": {},
	"switch": {}, "case": {}, "default": {}, "goto": {}, "break": {},
	"continue": {}, "sizeof": {}, "void": {}, "_Bool": {}, "char": {},
	"short": {}, "int": {}, "long": {}, "float": {}, "double": {},
	"struct": {}, "union": {}, "enum": {}, "typedef": {}, "static": {},
	"extern": {}, "inline": {}, "signed": {}, "unsigned": {}, "const": {},
	"volatile": {}, "auto": {}, "register": {}, "restrict": {},
	"__restrict": {}, "__restrict__": {}, "_Noreturn": {}, "_Alignas": {},
	"_Thread_local": {}, "__thread": {}, "_Static_assert": {},
	"typeof": {}, "__typeof": {}, "__typeof__": {},
	"asm": {}, "__asm": {}, "__asm__": {},
}

func (tok *Token) isKeyword() bool {
	_, ok := keywords[tok.Text()]
	return ok
}

func fromHex(c byte) int {
	if '0' <= c && c <= '9' {
		return int(c - '0')
	}
	if 'a' <= c && c <= 'f' {
		return int(c - 'a' + 10)
	}
	return int(c - 'A' + 10)
}

func isHexDigit(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

// Read an escape sequence starting right after a backslash. Returns
// the character value and the position of the next byte.
func readEscapedChar(file *File, p int) (int, int) {
	src := file.Contents

	if '0' <= src[p] && src[p] <= '7' {
		// Octal, up to three digits.
		c := int(src[p] - '0')
		p++
		for i := 0; i < 2 && p < len(src) && '0' <= src[p] && src[p] <= '7'; i++ {
			c = (c << 3) + int(src[p]-'0')
			p++
		}
		return c, p
	}

	if src[p] == 'x' {
		p++
		if !isHexDigit(src[p]) {
			errorAt(file, p, "invalid hex escape sequence")
		}
		c := 0
		for ; p < len(src) && isHexDigit(src[p]); p++ {
			c = (c << 4) + fromHex(src[p])
		}
		return c, p
	}

	switch src[p] {
	case 'a':
		return '\a', p + 1
	case 'b':
		return '\b', p + 1
	case 't':
		return '\t', p + 1
	case 'n':
		return '\n', p + 1
	case 'v':
		return '\v', p + 1
	case 'f':
		return '\f', p + 1
	case 'r':
		return '\r', p + 1
	case 'e':
		// [GNU] \e for the ASCII escape character.
		return 27, p + 1
	}
	return int(src[p]), p + 1
}

// Find the closing quote of a string literal that starts at src[p].
func stringLiteralEnd(file *File, p int) int {
	src := file.Contents
	start := p
	for ; p < len(src) && src[p] != '"'; p++ {
		if src[p] == '\n' {
			errorAt(file, start, "unclosed string literal")
		}
		if src[p] == '\\' {
			p++
		}
	}
	if p >= len(src) {
		errorAt(file, start, "unclosed string literal")
	}
	return p
}

func readStringLiteral(file *File, start int, quote int) *Token {
	end := stringLiteralEnd(file, quote+1)
	src := file.Contents

	buf := []byte{}
	for p := quote + 1; p < end; {
		if src[p] == '\\' {
			c, next := readEscapedChar(file, p+1)
			buf = append(buf, byte(c))
			p = next
		} else {
			buf = append(buf, src[p])
			p++
		}
	}
	buf = append(buf, 0)

	tok := newToken(file, TK_STR, start, end+1)
	tok.Ty = arrayOf(TyPChar, int64(len(buf)))
	tok.Str = buf
	return tok
}

// Read a UTF-8-encoded string literal and transcode it to UTF-16.
//
// UTF-16 is yet another variable-width encoding for Unicode. Code
// points smaller than U+10000 are encoded in 2 bytes. Code points
// equal to or larger than that are encoded in 4 bytes ("surrogate
// pair").
func readUTF16StringLiteral(file *File, start int, quote int) *Token {
	end := stringLiteralEnd(file, quote+1)
	src := file.Contents

	units := []uint16{}
	for p := quote + 1; p < end; {
		var c uint32
		if src[p] == '\\' {
			ci, next := readEscapedChar(file, p+1)
			c = uint32(ci)
			p = next
		} else {
			var n int
			c, n = decodeUTF8(src, p)
			p += n
		}

		if c < 0x10000 {
			units = append(units, uint16(c))
		} else {
			c -= 0x10000
			units = append(units, uint16(0xd800+((c>>10)&0x3ff)), uint16(0xdc00+(c&0x3ff)))
		}
	}
	units = append(units, 0)

	buf := make([]byte, 0, len(units)*2)
	for _, u := range units {
		buf = append(buf, byte(u), byte(u>>8))
	}

	tok := newToken(file, TK_STR, start, end+1)
	tok.Ty = arrayOf(TyUShort, int64(len(units)))
	tok.Str = buf
	return tok
}

// Read a string literal whose element type is a 4-byte wide char.
func readUTF32StringLiteral(file *File, start int, quote int, ty *CType) *Token {
	end := stringLiteralEnd(file, quote+1)
	src := file.Contents

	chars := []uint32{}
	for p := quote + 1; p < end; {
		if src[p] == '\\' {
			c, next := readEscapedChar(file, p+1)
			chars = append(chars, uint32(c))
			p = next
		} else {
			c, n := decodeUTF8(src, p)
			chars = append(chars, c)
			p += n
		}
	}
	chars = append(chars, 0)

	buf := make([]byte, 0, len(chars)*4)
	for _, c := range chars {
		buf = append(buf, byte(c), byte(c>>8), byte(c>>16), byte(c>>24))
	}

	tok := newToken(file, TK_STR, start, end+1)
	tok.Ty = arrayOf(ty, int64(len(chars)))
	tok.Str = buf
	return tok
}

func readCharLiteral(file *File, start int, quote int, ty *CType) *Token {
	src := file.Contents
	p := quote + 1
	if p >= len(src) || src[p] == '\n' {
		errorAt(file, start, "unclosed char literal")
	}

	var c int
	if src[p] == '\\' {
		c, p = readEscapedChar(file, p+1)
	} else {
		c32, n := decodeUTF8(src, p)
		c = int(c32)
		p += n
	}

	end := p
	for end < len(src) && src[end] != '\'' {
		if src[end] == '\n' {
			errorAt(file, start, "unclosed char literal")
		}
		end++
	}
	if end >= len(src) {
		errorAt(file, start, "unclosed char literal")
	}

	tok := newToken(file, TK_NUM, start, end+1)
	switch ty.Kind {
	case TY_PCHAR:
		tok.Val = int64(int8(c))
	case TY_SHORT:
		tok.Val = int64(uint16(c))
	default:
		tok.Val = int64(uint32(c))
	}
	tok.Ty = ty
	return tok
}

// Convert a TK_PP_NUM token to an integer TK_NUM token if it looks
// like an integer constant. Returns false otherwise.
func convertPPInt(tok *Token) bool {
	s := tok.Text()
	p := 0
	base := 10

	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "0x") && len(s) > 2 && isHexDigit(s[2]):
		p = 2
		base = 16
	case strings.HasPrefix(lower, "0b") && len(s) > 2 && (s[2] == '0' || s[2] == '1'):
		p = 2
		base = 2
	case s[0] == '0' && len(s) > 1:
		p = 1
		base = 8
	}

	digits := ""
	for ; p < len(s); p++ {
		c := s[p]
		valid := false
		switch base {
		case 16:
			valid = isHexDigit(c)
		case 10:
			valid = isDigit(c)
		case 8:
			valid = '0' <= c && c <= '7'
		case 2:
			valid = c == '0' || c == '1'
		}
		if !valid {
			break
		}
		digits += string(c)
	}
	if digits == "" {
		return false
	}

	val, err := strconv.ParseUint(digits, base, 64)
	if err != nil {
		errorTok(tok, "integer constant out of range")
	}

	// Read U, L or LL suffixes.
	suffix := strings.ToLower(s[p:])
	var u, l, ll bool
	switch suffix {
	case "":
	case "u":
		u = true
	case "l":
		l = true
	case "ll":
		ll = true
	case "ul", "lu":
		u, l = true, true
	case "ull", "llu":
		u, ll = true, true
	default:
		return false
	}

	// Infer a type.
	var ty *CType
	if base == 10 {
		switch {
		case ll && u:
			ty = TyULLong
		case ll:
			ty = TyLLong
		case l && u:
			ty = TyULong
		case l:
			ty = TyLong
		case u:
			if val>>32 != 0 {
				ty = TyULong
			} else {
				ty = TyUInt
			}
		default:
			if val>>31 != 0 {
				ty = TyLong
			} else {
				ty = TyInt
			}
		}
	} else {
		switch {
		case ll && u:
			ty = TyULLong
		case ll:
			if val>>63 != 0 {
				ty = TyULLong
			} else {
				ty = TyLLong
			}
		case l && u:
			ty = TyULong
		case l:
			if val>>63 != 0 {
				ty = TyULong
			} else {
				ty = TyLong
			}
		case u:
			if val>>32 != 0 {
				ty = TyULong
			} else {
				ty = TyUInt
			}
		default:
			switch {
			case val>>63 != 0:
				ty = TyULong
			case val>>32 != 0:
				ty = TyLong
			case val>>31 != 0:
				ty = TyUInt
			default:
				ty = TyInt
			}
		}
	}

	tok.Kind = TK_NUM
	tok.Val = int64(val)
	tok.Ty = ty
	return true
}

// The definition of the numeric literal at the preprocessing stage is
// more relaxed than the definition of that at the later stages, so
// pp-numbers are converted to typed numbers after macro expansion.
func convertPPNumber(tok *Token) {
	if convertPPInt(tok) {
		return
	}

	s := tok.Text()
	end := len(s)
	ty := TyDouble
	switch s[end-1] {
	case 'f', 'F':
		ty = TyFloat
		s = s[:end-1]
	case 'l', 'L':
		ty = TyLDouble
		s = s[:end-1]
	}

	val, err := strconv.ParseFloat(s, 64)
	if err != nil {
		errorTok(tok, "invalid numeric constant")
	}

	tok.Kind = TK_NUM
	tok.FVal = val
	tok.Ty = ty
}

func convertPPTokens(tok *Token) {
	for t := tok; t != nil && t.Kind != TK_EOF; t = t.Next {
		if t.Kind == TK_PP_NUM {
			convertPPNumber(t)
		}
	}
}

// Initialize line info for all tokens.
func addLineNumbers(tok *Token) {
	src := tok.File.Contents
	n := 1
	pos := 0

	for t := tok; t != nil && t.Kind != TK_EOF; t = t.Next {
		for pos < t.Loc {
			if src[pos] == '\n' {
				n++
			}
			pos++
		}
		t.LineNo = n
	}
}

func readIdent(src []byte, start int) int {
	p := start
	if !isIdent1(src[p]) {
		return 0
	}
	for p < len(src) && isIdent2(src[p]) {
		p++
	}
	return p - start
}

var puncts = []string{
	"<<=", ">>=", "...", "==", "!=", "<=", ">=", "->", "+=", "-=", "*=",
	"/=", "++", "--", "%=", "&=", "|=", "^=", "&&", "||", "<<", ">>", "##",
}

// Read a punctuator token and return its length.
func readPunct(src []byte, p int) int {
	rest := src[p:]
	for _, kw := range puncts {
		if len(rest) >= len(kw) && string(rest[:len(kw)]) == kw {
			return len(kw)
		}
	}

	if len(rest) > 0 && strings.IndexByte("+-*/%&|^!~<>=;:,.()[]{}#?", rest[0]) >= 0 {
		return 1
	}
	return 0
}

func newToken(file *File, kind TokenKind, start int, end int) *Token {
	return &Token{
		Kind: kind,
		File: file,
		Loc:  start,
		Len:  end - start,
	}
}

// Tokenize a file and return the linked list of tokens. If `end` is
// non-nil it receives the last non-EOF token (used for include-guard
// detection).
func tokenize(file *File, end **Token) *Token {
	src := file.Contents

	head := Token{}
	cur := &head
	atBOL := true
	hasSpace := false
	p := 0

	addTok := func(tok *Token) {
		tok.AtBOL = atBOL
		tok.HasSpace = hasSpace
		atBOL = false
		hasSpace = false
		cur.Next = tok
		cur = cur.Next
	}

	for p < len(src) {
		// Skip line comments.
		if src[p] == '/' && p+1 < len(src) && src[p+1] == '/' {
			for p < len(src) && src[p] != '\n' {
				p++
			}
			hasSpace = true
			continue
		}

		// Skip block comments.
		if src[p] == '/' && p+1 < len(src) && src[p+1] == '*' {
			q := p + 2
			for q+1 < len(src) && !(src[q] == '*' && src[q+1] == '/') {
				q++
			}
			if q+1 >= len(src) {
				errorAt(file, p, "unclosed block comment")
			}
			p = q + 2
			hasSpace = true
			continue
		}

		// Skip newline.
		if src[p] == '\n' {
			p++
			atBOL = true
			hasSpace = false
			continue
		}

		// Skip whitespace characters.
		if src[p] == ' ' || src[p] == '\t' || src[p] == '\v' || src[p] == '\f' || src[p] == '\r' {
			p++
			hasSpace = true
			continue
		}

		// Numeric literal
		if isDigit(src[p]) || (src[p] == '.' && p+1 < len(src) && isDigit(src[p+1])) {
			q := p
			p++
			for p < len(src) {
				if p+1 < len(src) && strings.IndexByte("eEpP", src[p]) >= 0 && (src[p+1] == '+' || src[p+1] == '-') {
					p += 2
				} else if isIdent2(src[p]) || src[p] == '.' {
					p++
				} else {
					break
				}
			}
			addTok(newToken(file, TK_PP_NUM, q, p))
			continue
		}

		// String literal
		if src[p] == '"' {
			tok := readStringLiteral(file, p, p)
			p += tok.Len
			addTok(tok)
			continue
		}

		// UTF-8 string literal
		if src[p] == 'u' && p+2 < len(src) && src[p+1] == '8' && src[p+2] == '"' {
			tok := readStringLiteral(file, p, p+2)
			p += tok.Len
			addTok(tok)
			continue
		}

		// UTF-16 string literal
		if src[p] == 'u' && p+1 < len(src) && src[p+1] == '"' {
			tok := readUTF16StringLiteral(file, p, p+1)
			p += tok.Len
			addTok(tok)
			continue
		}

		// Wide string literal (UTF-32 with element type int)
		if src[p] == 'L' && p+1 < len(src) && src[p+1] == '"' {
			tok := readUTF32StringLiteral(file, p, p+1, TyInt)
			p += tok.Len
			addTok(tok)
			continue
		}

		// UTF-32 string literal
		if src[p] == 'U' && p+1 < len(src) && src[p+1] == '"' {
			tok := readUTF32StringLiteral(file, p, p+1, TyUInt)
			p += tok.Len
			addTok(tok)
			continue
		}

		// Character literal
		if src[p] == '\'' {
			tok := readCharLiteral(file, p, p, TyPChar)
			tok.Val = int64(int8(tok.Val))
			p += tok.Len
			addTok(tok)
			continue
		}

		// UTF-16 character literal
		if src[p] == 'u' && p+1 < len(src) && src[p+1] == '\'' {
			tok := readCharLiteral(file, p, p+1, TyUShort)
			p += tok.Len
			addTok(tok)
			continue
		}

		// Wide character literal
		if src[p] == 'L' && p+1 < len(src) && src[p+1] == '\'' {
			tok := readCharLiteral(file, p, p+1, TyInt)
			p += tok.Len
			addTok(tok)
			continue
		}

		// UTF-32 character literal
		if src[p] == 'U' && p+1 < len(src) && src[p+1] == '\'' {
			tok := readCharLiteral(file, p, p+1, TyUInt)
			p += tok.Len
			addTok(tok)
			continue
		}

		// Identifier or keyword
		if n := readIdent(src, p); n != 0 {
			addTok(newToken(file, TK_IDENT, p, p+n))
			p += n
			continue
		}

		// Punctuators
		if n := readPunct(src, p); n != 0 {
			addTok(newToken(file, TK_PUNCT, p, p+n))
			p += n
			continue
		}

		errorAt(file, p, "invalid token")
	}

	if end != nil && cur != &head {
		*end = cur
	}

	eof := newToken(file, TK_EOF, p, p)
	eof.AtBOL = true
	eof.HasSpace = hasSpace
	cur.Next = eof
	addLineNumbers(head.Next)
	return head.Next
}

// Replaces \r or \r\n with \n.
func canonicalizeNewline(src []byte) []byte {
	out := src[:0]
	for i := 0; i < len(src); {
		if src[i] == '\r' && i+1 < len(src) && src[i+1] == '\n' {
			out = append(out, '\n')
			i += 2
		} else if src[i] == '\r' {
			out = append(out, '\n')
			i++
		} else {
			out = append(out, src[i])
			i++
		}
	}
	return out
}

// Removes backslashes followed by a newline while keeping the logical
// line count intact by emitting the removed newlines after the next
// real newline.
func removeBackslashNewline(src []byte) []byte {
	out := make([]byte, 0, len(src))
	pending := 0

	for i := 0; i < len(src); {
		if src[i] == '\\' && i+1 < len(src) && src[i+1] == '\n' {
			i += 2
			pending++
		} else if src[i] == '\n' {
			out = append(out, '\n')
			for ; pending > 0; pending-- {
				out = append(out, '\n')
			}
			i++
		} else {
			out = append(out, src[i])
			i++
		}
	}
	for ; pending > 0; pending-- {
		out = append(out, '\n')
	}
	return out
}

func readUniversalChar(src []byte, p int, length int) uint32 {
	c := uint32(0)
	for i := 0; i < length; i++ {
		if p+i >= len(src) || !isHexDigit(src[p+i]) {
			return 0
		}
		c = (c << 4) | uint32(fromHex(src[p+i]))
	}
	return c
}

// Replace \u or \U escape sequences with corresponding UTF-8 bytes.
func convertUniversalChars(src []byte) []byte {
	out := make([]byte, 0, len(src))

	for i := 0; i < len(src); {
		if src[i] == '\\' && i+1 < len(src) && src[i+1] == 'u' {
			c := readUniversalChar(src, i+2, 4)
			if c != 0 {
				out = encodeUTF8(out, c)
				i += 6
				continue
			}
		}
		if src[i] == '\\' && i+1 < len(src) && src[i+1] == 'U' {
			c := readUniversalChar(src, i+2, 8)
			if c != 0 {
				out = encodeUTF8(out, c)
				i += 10
				continue
			}
		}
		if src[i] == '\\' && i+1 < len(src) {
			out = append(out, src[i], src[i+1])
			i += 2
			continue
		}
		out = append(out, src[i])
		i++
	}
	return out
}

func readFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func addInputFile(name string, contents []byte) *File {
	fileNoCounter++
	file := newFile(name, fileNoCounter, contents)
	file.IsInput = true
	inputFiles = append(inputFiles, file)
	return file
}

// tokenizeFile opens, preprocess-normalizes and tokenizes a file.
// Returns nil if the file cannot be read.
func tokenizeFile(path string, end **Token) *Token {
	src, err := readFile(path)
	if err != nil {
		return nil
	}

	// UTF-8 BOM
	if len(src) >= 3 && src[0] == 0xef && src[1] == 0xbb && src[2] == 0xbf {
		src = src[3:]
	}

	src = canonicalizeNewline(src)
	src = removeBackslashNewline(src)
	src = convertUniversalChars(src)

	// Make sure the file ends with a newline so that directive
	// scanning never runs off the end.
	if len(src) == 0 || src[len(src)-1] != '\n' {
		src = append(src, '\n')
	}

	file := addInputFile(path, src)
	return tokenize(file, end)
}

// tokenizeBuf tokenizes an in-memory buffer. The preprocessor uses
// this for `##` paste results, stringized literals and _Pragma bodies.
func tokenizeBuf(name string, fileNo int, buf string, end **Token) *Token {
	return tokenize(newFile(name, fileNo, append([]byte(buf), '\n')), end)
}

// Re-type a narrow string literal token as a wide one. Used when
// adjacent string literals of mixed width are concatenated.
func tokenizeStringLiteral(tok *Token, basety *CType) *Token {
	var t *Token
	if basety.Size == 2 {
		t = readUTF16StringLiteral(tok.File, tok.Loc, tok.Loc)
	} else {
		t = readUTF32StringLiteral(tok.File, tok.Loc, tok.Loc, basety)
	}
	t.Next = tok.Next
	t.LineNo = tok.LineNo
	return t
}
