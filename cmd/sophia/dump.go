package main

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/juno-r1/sophia-sub000/code"
)

// programDoc is the YAML shape printed by dump.
type programDoc struct {
	Task         string       `yaml:"task"`
	Namespace    []bindingDoc `yaml:"namespace,omitempty"`
	Instructions []string     `yaml:"instructions"`
}

type bindingDoc struct {
	Name  string `yaml:"name"`
	Type  string `yaml:"type,omitempty"`
	Value any    `yaml:"value"`
}

func documentOf(prog *code.Program) programDoc {
	doc := programDoc{Task: prog.Name()}
	for _, b := range prog.Namespace {
		doc.Namespace = append(doc.Namespace, bindingDoc{Name: b.Name, Type: b.Type, Value: b.Value.Value()})
	}
	for _, in := range prog.Instructions {
		doc.Instructions = append(doc.Instructions, in.String())
	}
	return doc
}

func dumpCommand(w io.Writer, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: sophia dump <file>")
	}
	prog, err := loadProgram(args[0])
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(documentOf(prog)); err != nil {
		return fmt.Errorf("encoding %s: %w", args[0], err)
	}
	return enc.Close()
}
