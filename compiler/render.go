package compiler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"go/parser"
	"go/token"
	"path"
	"strconv"
	"strings"
	"text/template"

	"github.com/flowforge/flowforge/graph"
	"github.com/flowforge/flowforge/types"
)

// Rendered is a standalone program generated from a schema.
type Rendered struct {
	FilePath string `json:"file_path"`
	Code     string `json:"code"`
}

// programTemplate emits a self-contained main package that embeds the
// schema and executes it through the runtime facade.
var programTemplate = template.Must(template.New("program").Parse(`// Code generated from graph {{.GraphName}}. DO NOT EDIT.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/flowforge/flowforge"
	"github.com/flowforge/flowforge/graph"
	"github.com/flowforge/flowforge/types"
)

const graphJSON = {{.SchemaLiteral}}

func main() {
	input := flag.String("input", "", "workflow input")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer logger.Sync()

	schema, err := graph.Parse([]byte(graphJSON))
	if err != nil {
		logger.Fatal("parse embedded graph", zap.Error(err))
	}

	rt, err := flowforge.New(flowforge.WithLogger(logger))
	if err != nil {
		logger.Fatal("build runtime", zap.Error(err))
	}

	program, err := rt.Compile(schema)
	if err != nil {
		logger.Fatal("compile graph", zap.Error(err))
	}

	final, err := program.Run(context.Background(), *input)
	if err != nil {
		logger.Error("run finished with error", zap.Error(err))
	}

	encoded, err := json.MarshalIndent(final[types.KeyFinalOutput], "", "  ")
	if err != nil {
		logger.Fatal("encode output", zap.Error(err))
	}
	fmt.Println(string(encoded))
}
`))

// Render validates schema and emits it as a standalone Go program. The
// generated source must parse; a syntax failure is the renderer's only
// fatal error.
func (c *Compiler) Render(schema *graph.Schema) (*Rendered, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	// Routing problems surface at render time too.
	if _, err := BuildRoutes(schema); err != nil {
		return nil, err
	}

	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "encode schema").WithCause(err)
	}

	var buf bytes.Buffer
	err = programTemplate.Execute(&buf, struct {
		GraphName     string
		SchemaLiteral string
	}{
		GraphName:     schema.GraphName,
		SchemaLiteral: strconv.Quote(string(schemaJSON)),
	})
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "render program").WithCause(err)
	}

	code := buf.String()
	if err := checkSyntax(code); err != nil {
		return nil, err
	}

	return &Rendered{
		FilePath: path.Join("generated", renderFileName(schema.GraphName)),
		Code:     code,
	}, nil
}

// checkSyntax parses the generated source and rejects code that does not
// compile at the syntax level.
func checkSyntax(code string) error {
	fset := token.NewFileSet()
	if _, err := parser.ParseFile(fset, "generated.go", code, parser.AllErrors); err != nil {
		return types.NewError(types.ErrRenderInvalid, "generated code failed syntax check").
			WithCause(err).WithHTTPStatus(400)
	}
	return nil
}

func renderFileName(graphName string) string {
	name := graph.SanitizeID(strings.ToLower(graphName))
	if name == "" || strings.Trim(name, "_") == "" {
		name = "workflow"
	}
	return fmt.Sprintf("%s.go", name)
}
