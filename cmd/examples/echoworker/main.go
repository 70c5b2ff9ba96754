// Package main is the worker image entry point for the "test.echo"
// func_id: it echoes back its own args, stdin, and every input file as
// output files, exercising the full worker SDK surface.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mokemokechicken/spr-adbi/internal/worker"
)

func main() {
	w, err := worker.New(context.Background(), os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { w.Close(recover()) }()

	args, err := w.Args()
	if err != nil {
		_ = w.Error(err.Error(), nil, nil)
		return
	}
	argsJSON, err := json.Marshal(args)
	if err != nil {
		_ = w.Error(err.Error(), nil, nil)
		return
	}

	stdin, err := w.Stdin()
	if err != nil {
		_ = w.Error(err.Error(), nil, nil)
		return
	}

	outputInfo := map[string][]byte{
		"args":  argsJSON,
		"stdin": stdin,
	}

	filenames, err := w.GetInputFilenames()
	if err != nil {
		_ = w.Error(err.Error(), nil, nil)
		return
	}
	for _, name := range filenames {
		data, err := w.Read(name)
		if err != nil {
			_ = w.Error(err.Error(), nil, nil)
			return
		}
		outputInfo[strings.TrimPrefix(name, "input/")] = data
	}

	_ = w.Success(outputInfo, nil)
}
