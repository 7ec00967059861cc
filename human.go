package ethcontract

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Human-readable ABI signatures, in the style popularized by ethers and
// cast:
//
//	function balanceOf(address owner) view returns (uint256)
//	event Transfer(address indexed from, address indexed to, uint256 value)
//	error InsufficientBalance(uint256 available, uint256 required)
//	constructor(string name, string symbol)
//	balanceOf(address)(uint256)
//	transfer(address,uint256)
//
// ParseSignature converts one signature into the equivalent JSON ABI
// element; ParseSignatures assembles a whole abi.ABI from several.

var identifierRe = regexp.MustCompile(`^[a-zA-Z$_][a-zA-Z0-9$_]*$`)

// arraySuffixRe matches any run of fixed or dynamic array suffixes.
var arraySuffixRe = regexp.MustCompile(`^(\[\d*\])*$`)

// ABIField is one input/output parameter of a JSON ABI element.
type ABIField struct {
	Type       string     `json:"type"`
	Name       string     `json:"name"`
	Components []ABIField `json:"components,omitempty"`
	Indexed    bool       `json:"indexed,omitempty"`
}

// ABIElement is one entry of a JSON ABI document.
type ABIElement struct {
	Type            string     `json:"type"`
	Name            string     `json:"name,omitempty"`
	Inputs          []ABIField `json:"inputs"`
	Outputs         []ABIField `json:"outputs,omitempty"`
	StateMutability string     `json:"stateMutability,omitempty"`
	Anonymous       bool       `json:"anonymous,omitempty"`
}

// ParseSignatures parses human-readable signatures into an ABI.
func ParseSignatures(sigs ...string) (abi.ABI, error) {
	elements := make([]ABIElement, 0, len(sigs))
	for _, sig := range sigs {
		el, err := ParseSignature(sig)
		if err != nil {
			return abi.ABI{}, err
		}
		elements = append(elements, el)
	}
	data, err := json.Marshal(elements)
	if err != nil {
		return abi.ABI{}, err
	}
	return abi.JSON(bytes.NewReader(data))
}

// MustParseSignatures is like ParseSignatures but panics on error.
func MustParseSignatures(sigs ...string) abi.ABI {
	parsed, err := ParseSignatures(sigs...)
	if err != nil {
		panic(err)
	}
	return parsed
}

// ParseSignature parses one human-readable signature into a JSON ABI
// element. The leading keyword (function, event, error, constructor,
// fallback, receive) may be omitted for functions; a second parenthesized
// group declares the outputs, as in cast's "balanceOf(address)(uint256)".
func ParseSignature(sig string) (ABIElement, error) {
	s := strings.TrimSpace(sig)

	switch {
	case strings.HasPrefix(s, "receive("):
		return ABIElement{Type: "receive", StateMutability: "payable", Inputs: []ABIField{}}, nil
	case strings.HasPrefix(s, "fallback("):
		mutability := "nonpayable"
		if strings.HasSuffix(s, "payable") && !strings.HasSuffix(s, "nonpayable") {
			mutability = "payable"
		}
		return ABIElement{Type: "fallback", StateMutability: mutability, Inputs: []ABIField{}}, nil
	case strings.HasPrefix(s, "event "):
		return parseEventSignature(sig, strings.TrimSpace(s[len("event "):]))
	case strings.HasPrefix(s, "error "):
		return parseErrorSignature(sig, strings.TrimSpace(s[len("error "):]))
	case strings.HasPrefix(s, "constructor("):
		return parseConstructorSignature(sig, s)
	}

	s = strings.TrimSpace(strings.TrimPrefix(s, "function "))
	return parseFunctionSignature(sig, s)
}

func parseFunctionSignature(sig, s string) (ABIElement, error) {
	name, rest, inputsRaw, err := splitHead(sig, s)
	if err != nil {
		return ABIElement{}, err
	}
	inputs, err := parseParams(sig, inputsRaw, false)
	if err != nil {
		return ABIElement{}, err
	}

	el := ABIElement{
		Type:            "function",
		Name:            name,
		Inputs:          inputs,
		Outputs:         []ABIField{},
		StateMutability: "nonpayable",
	}

	rest = strings.TrimSpace(rest)

	// cast style: outputs as a bare second group, "balanceOf(address)(uint256)"
	if strings.HasPrefix(rest, "(") {
		outputsRaw, tail, err := takeGroup(sig, rest)
		if err != nil {
			return ABIElement{}, err
		}
		if strings.TrimSpace(tail) != "" {
			return ABIElement{}, &SignatureError{Signature: sig, Reason: "unexpected trailing content"}
		}
		el.Outputs, err = parseParams(sig, outputsRaw, false)
		if err != nil {
			return ABIElement{}, err
		}
		el.StateMutability = "view"
		return el, nil
	}

	// solidity style: modifier keywords, then "returns (...)"
	for rest != "" {
		if strings.HasPrefix(rest, "returns") {
			rest = strings.TrimSpace(rest[len("returns"):])
			if !strings.HasPrefix(rest, "(") {
				return ABIElement{}, &SignatureError{Signature: sig, Reason: "expected ( after returns"}
			}
			outputsRaw, tail, err := takeGroup(sig, rest)
			if err != nil {
				return ABIElement{}, err
			}
			if strings.TrimSpace(tail) != "" {
				return ABIElement{}, &SignatureError{Signature: sig, Reason: "unexpected trailing content"}
			}
			el.Outputs, err = parseParams(sig, outputsRaw, false)
			if err != nil {
				return ABIElement{}, err
			}
			return el, nil
		}

		word := rest
		if i := strings.IndexAny(rest, " \t"); i >= 0 {
			word, rest = rest[:i], strings.TrimSpace(rest[i+1:])
		} else {
			rest = ""
		}
		switch word {
		case "external", "public":
			// visibility carries no ABI meaning
		case "pure", "view", "nonpayable", "payable":
			el.StateMutability = word
		default:
			return ABIElement{}, &SignatureError{Signature: sig, Reason: "unexpected token " + word}
		}
	}
	return el, nil
}

func parseEventSignature(sig, s string) (ABIElement, error) {
	name, rest, inputsRaw, err := splitHead(sig, s)
	if err != nil {
		return ABIElement{}, err
	}
	tail := strings.TrimSpace(rest)
	anonymous := false
	switch tail {
	case "":
	case "anonymous":
		anonymous = true
	default:
		return ABIElement{}, &SignatureError{Signature: sig, Reason: "unexpected trailing content"}
	}
	inputs, err := parseParams(sig, inputsRaw, true)
	if err != nil {
		return ABIElement{}, err
	}
	return ABIElement{Type: "event", Name: name, Inputs: inputs, Anonymous: anonymous}, nil
}

func parseErrorSignature(sig, s string) (ABIElement, error) {
	name, rest, inputsRaw, err := splitHead(sig, s)
	if err != nil {
		return ABIElement{}, err
	}
	if strings.TrimSpace(rest) != "" {
		return ABIElement{}, &SignatureError{Signature: sig, Reason: "unexpected trailing content"}
	}
	inputs, err := parseParams(sig, inputsRaw, false)
	if err != nil {
		return ABIElement{}, err
	}
	return ABIElement{Type: "error", Name: name, Inputs: inputs}, nil
}

func parseConstructorSignature(sig, s string) (ABIElement, error) {
	inputsRaw, tail, err := takeGroup(sig, s[len("constructor"):])
	if err != nil {
		return ABIElement{}, err
	}
	mutability := "nonpayable"
	switch strings.TrimSpace(tail) {
	case "":
	case "payable":
		mutability = "payable"
	default:
		return ABIElement{}, &SignatureError{Signature: sig, Reason: "unexpected trailing content"}
	}
	inputs, err := parseParams(sig, inputsRaw, false)
	if err != nil {
		return ABIElement{}, err
	}
	return ABIElement{Type: "constructor", Inputs: inputs, StateMutability: mutability}, nil
}

// splitHead splits "name(params) tail" into its three parts.
func splitHead(sig, s string) (name, tail, params string, err error) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return "", "", "", &SignatureError{Signature: sig, Reason: "missing parameter list"}
	}
	name = strings.TrimSpace(s[:open])
	if !identifierRe.MatchString(name) {
		return "", "", "", &SignatureError{Signature: sig, Reason: "invalid name " + name}
	}
	params, tail, err = takeGroup(sig, s[open:])
	return name, tail, params, err
}

// takeGroup consumes a leading parenthesized group, returning its inner
// content and whatever follows the matching close paren.
func takeGroup(sig, s string) (inner, tail string, err error) {
	if !strings.HasPrefix(s, "(") {
		return "", "", &SignatureError{Signature: sig, Reason: "expected ("}
	}
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], nil
			}
		}
	}
	return "", "", &SignatureError{Signature: sig, Reason: "unbalanced parentheses"}
}

// splitTopLevel splits on commas outside of any parentheses.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func parseParams(sig, s string, allowIndexed bool) ([]ABIField, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []ABIField{}, nil
	}
	parts := splitTopLevel(s)
	fields := make([]ABIField, 0, len(parts))
	for _, part := range parts {
		f, err := parseParam(sig, part, allowIndexed)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// parseParam parses one parameter: a type (elementary or tuple, with
// optional array suffixes), optional data-location or indexed modifiers,
// and an optional name.
func parseParam(sig, s string, allowIndexed bool) (ABIField, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ABIField{}, &SignatureError{Signature: sig, Reason: "empty parameter"}
	}

	var f ABIField

	if strings.HasPrefix(s, "(") {
		inner, tail, err := takeGroup(sig, s)
		if err != nil {
			return ABIField{}, err
		}
		components, err := parseParams(sig, inner, false)
		if err != nil {
			return ABIField{}, err
		}
		f.Type = "tuple"
		f.Components = components

		tail = strings.TrimLeft(tail, " \t")
		suffix := tail
		if i := strings.IndexAny(tail, " \t"); i >= 0 {
			suffix, tail = tail[:i], tail[i+1:]
		} else {
			tail = ""
		}
		if suffix != "" {
			if !arraySuffixRe.MatchString(suffix) {
				return ABIField{}, &SignatureError{Signature: sig, Reason: "invalid array suffix " + suffix}
			}
			f.Type += suffix
		}
		return finishParam(sig, f, tail, allowIndexed)
	}

	typ := s
	rest := ""
	if i := strings.IndexAny(s, " \t"); i >= 0 {
		typ, rest = s[:i], strings.TrimSpace(s[i+1:])
	}
	// "address payable" is a two-token elementary type
	if typ == "address" && (rest == "payable" || strings.HasPrefix(rest, "payable ")) {
		rest = strings.TrimSpace(strings.TrimPrefix(rest, "payable"))
	}
	f.Type = typ
	return finishParam(sig, f, rest, allowIndexed)
}

// finishParam consumes trailing modifiers and the parameter name.
func finishParam(sig string, f ABIField, rest string, allowIndexed bool) (ABIField, error) {
	for _, word := range strings.Fields(rest) {
		switch word {
		case "indexed":
			if !allowIndexed {
				return ABIField{}, &SignatureError{Signature: sig, Reason: "indexed outside event"}
			}
			f.Indexed = true
		case "calldata", "memory", "storage":
			// data location carries no ABI meaning
		default:
			if f.Name != "" || !identifierRe.MatchString(word) {
				return ABIField{}, &SignatureError{Signature: sig, Reason: "unexpected token " + word}
			}
			f.Name = word
		}
	}
	return f, nil
}
