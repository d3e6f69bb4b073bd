package main

import (
	"errors"
	"io"

	"pkt.systems/tmplay/examples"
	"pkt.systems/tmplay/schema"
)

// program is a source plus the tape input it suggests.
type program struct {
	Name   string
	Source string
	Tape   string
}

// loadProgram resolves a program from an example name or a file argument.
// Exactly one of them must be given.
func loadProgram(stdin io.Reader, args []string, example string) (program, error) {
	switch {
	case example != "" && len(args) > 0:
		return program{}, errors.New("give either a program file or --example, not both")
	case example != "":
		info, source, err := examples.Get(schema.ExampleName(example))
		if err != nil {
			return program{}, err
		}
		return program{Name: string(info.Name), Source: source, Tape: info.Tape}, nil
	case len(args) == 1:
		source, err := readSourceFile(stdin, args[0])
		if err != nil {
			return program{}, err
		}
		return program{Name: args[0], Source: source}, nil
	default:
		return program{}, errors.New("a program file (or - for stdin) or --example is required")
	}
}
