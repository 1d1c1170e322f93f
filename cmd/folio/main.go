package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/tech-arch1tect/folio"
	"github.com/tech-arch1tect/folio/config"
	handlers "github.com/tech-arch1tect/folio/handlers/newsletter"
)

func main() {
	printSpec := flag.Bool("openapi", false, "print the OpenAPI document as YAML and exit")
	flag.Parse()

	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *printSpec {
		if err := writeSpec(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "failed to render OpenAPI document: %v\n", err)
			os.Exit(1)
		}
		return
	}

	application, err := folio.New(folio.WithConfig(cfg), folio.WithNewsletter())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	if err := application.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func writeSpec(cfg *config.Config) error {
	doc := handlers.Docs(cfg)
	if err := doc.Validate(context.Background()); err != nil {
		return err
	}
	out, err := doc.YAML()
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(out)
	return err
}
