package main

import (
	"encoding/json"
	"fmt"

	"github.com/Grimnirrrr/keratin/pkg/assembly"
	"github.com/Grimnirrrr/keratin/pkg/instructions"
	"github.com/Grimnirrrr/keratin/pkg/preview"
	"github.com/Grimnirrrr/keratin/pkg/preview/sdfx"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// runInstructions generates a document for the assembly file.
func runInstructions(cmd *cobra.Command, args []string) error {
	_, a, err := readAssembly(args[0])
	if err != nil {
		return err
	}

	gen := instructions.NewGenerator(instructions.Config{})
	doc := gen.Generate(a, instructions.Options{})

	switch docFormat {
	case "markdown":
		fmt.Println(instructions.ExportMarkdown(doc))
	case "html":
		fmt.Println(instructions.ExportHTML(doc))
	default:
		return fmt.Errorf("unknown format %q (markdown|html)", docFormat)
	}
	return nil
}

// runValidate checks the assembly file and reports findings.
func runValidate(cmd *cobra.Command, args []string) error {
	_, a, err := readAssembly(args[0])
	if err != nil {
		return err
	}

	res := assembly.Validate(a)
	for _, w := range res.Warnings {
		fmt.Println(w.Error())
	}
	for _, e := range res.Errors {
		fmt.Println(e.Error())
	}
	if !res.Valid() {
		return fmt.Errorf("%s: %d blocking errors", args[0], len(res.Errors))
	}

	fmt.Printf("%s: %d pieces, %d connections, version %d: ok\n",
		a.Name, len(a.Pieces), len(a.ConnectionList()), a.Version)
	return nil
}

// runPreview tessellates the assembly and writes the meshes as JSON.
func runPreview(cmd *cobra.Command, args []string) error {
	_, a, err := readAssembly(args[0])
	if err != nil {
		return err
	}

	k := sdfx.New()
	var meshes []*preview.Mesh
	if previewFused {
		mesh, err := preview.Fused(a, k, preview.Options{})
		if err != nil {
			return err
		}
		if mesh != nil {
			meshes = append(meshes, mesh)
		}
	} else {
		meshes, err = preview.Build(a, k, preview.Options{})
		if err != nil {
			return err
		}
	}
	if meshes == nil {
		meshes = []*preview.Mesh{}
	}

	triangles := 0
	for _, m := range meshes {
		triangles += m.TriangleCount()
	}
	logger.Debug("assembly tessellated",
		zap.Int("meshes", len(meshes)),
		zap.Int("triangles", triangles))

	out, err := json.MarshalIndent(meshes, "", "  ")
	if err != nil {
		return err
	}
	if err := writeOutput(previewOut, out); err != nil {
		return err
	}
	if previewOut != "" {
		fmt.Printf("wrote %d meshes (%d triangles) to %s\n", len(meshes), triangles, previewOut)
	}
	return nil
}
