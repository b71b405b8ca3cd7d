package main

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/engine"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/errcode"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/model"
	"github.com/iWorld-y/content_pipeline/app/content_pipeline/pkg/research"
)

// researchFlags research 与 run 共用的参数
type researchFlags struct {
	runID    string
	topic    string
	audience string
	goal     string
	brand    string
	region   string
	count    int
	file     string
}

func (f *researchFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.runID, "run-id", "", "run id (generated when empty)")
	cmd.Flags().StringVar(&f.topic, "topic", "", "blog topic")
	cmd.Flags().StringVar(&f.audience, "audience", "", "target audience")
	cmd.Flags().StringVar(&f.goal, "goal", "", "content goal")
	cmd.Flags().StringVar(&f.brand, "brand", "", "brand name")
	cmd.Flags().StringVar(&f.region, "region", "", "target region")
	cmd.Flags().IntVarP(&f.count, "count", "n", 1, "number of blog angles")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "reference document (html, markdown or text)")
}

func (f *researchFlags) options() (engine.ResearchOptions, error) {
	opts := engine.ResearchOptions{
		RunID: f.runID,
		Context: model.ResearchContext{
			Topic:          f.topic,
			TargetAudience: f.audience,
			ContentGoal:    f.goal,
			Brand:          f.brand,
			Region:         f.region,
		},
		BlogCount: f.count,
	}
	if f.file != "" {
		data, err := os.ReadFile(f.file)
		if err != nil {
			return opts, errcode.Validation("read document %s: %v", f.file, err)
		}
		opts.Document = &research.Document{Name: filepath.Base(f.file), Data: data}
	}
	return opts, nil
}

func researchCMD(g *globalFlags) *cobra.Command {
	f := &researchFlags{}
	cmd := &cobra.Command{
		Use:   "research",
		Short: "Fetch SERP data and generate one research brief per blog angle",
	}
	f.bind(cmd)
	cmd.RunE = withApp(g, func(ctx context.Context, a *app) (any, error) {
		opts, err := f.options()
		if err != nil {
			return nil, err
		}
		return a.engine.Research(ctx, opts)
	})
	return cmd
}

func writeCMD(g *globalFlags) *cobra.Command {
	var opts engine.WriteOptions
	cmd := &cobra.Command{
		Use:   "write",
		Short: "Draft an article from a research brief",
	}
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run id returned by research")
	cmd.Flags().IntVar(&opts.BlogNumber, "blog", 0, "blog number (0 = first brief)")
	_ = cmd.MarkFlagRequired("run-id")
	cmd.RunE = withApp(g, func(ctx context.Context, a *app) (any, error) {
		return a.engine.Write(ctx, opts)
	})
	return cmd
}

func brandCMD(g *globalFlags) *cobra.Command {
	var opts engine.BrandOptions
	cmd := &cobra.Command{
		Use:   "brand",
		Short: "Score the article against the brand voice and rewrite until accepted",
	}
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run id returned by research")
	cmd.Flags().IntVar(&opts.BlogNumber, "blog", 0, "blog number (0 = first brief)")
	cmd.Flags().StringVar(&opts.Voice, "voice", "", "brand voice guidelines (defaults to config)")
	_ = cmd.MarkFlagRequired("run-id")
	cmd.RunE = withApp(g, func(ctx context.Context, a *app) (any, error) {
		return a.engine.Brand(ctx, opts)
	})
	return cmd
}

func refineCMD(g *globalFlags) *cobra.Command {
	var opts engine.RefineOptions
	cmd := &cobra.Command{
		Use:   "refine",
		Short: "Revise the latest article with a user suggestion and rescore it",
	}
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run id returned by research")
	cmd.Flags().IntVar(&opts.BlogNumber, "blog", 0, "blog number (0 = first brief)")
	cmd.Flags().StringVarP(&opts.Suggestion, "suggestion", "s", "", "what to change")
	cmd.Flags().StringVar(&opts.Voice, "voice", "", "brand voice guidelines (defaults to config)")
	_ = cmd.MarkFlagRequired("run-id")
	_ = cmd.MarkFlagRequired("suggestion")
	cmd.RunE = withApp(g, func(ctx context.Context, a *app) (any, error) {
		return a.engine.Refine(ctx, opts)
	})
	return cmd
}

func saveCMD(g *globalFlags) *cobra.Command {
	var runID, name, content, file string
	cmd := &cobra.Command{
		Use:   "save",
		Short: "Save final content into the run directory",
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	cmd.Flags().StringVar(&name, "name", "", "file name (default output.md)")
	cmd.Flags().StringVar(&content, "content", "", "content to save")
	cmd.Flags().StringVarP(&file, "file", "f", "", "read content from file, - for stdin")
	_ = cmd.MarkFlagRequired("run-id")
	cmd.RunE = withApp(g, func(ctx context.Context, a *app) (any, error) {
		if file != "" {
			data, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return nil, errcode.Validation("read %s: %v", file, err)
			}
			content = string(data)
		}
		path, err := a.engine.SaveOutput(ctx, runID, name, content)
		if err != nil {
			return nil, err
		}
		return map[string]string{"path": path}, nil
	})
	return cmd
}

func readInput(stdin io.Reader, file string) ([]byte, error) {
	if file == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(file)
}

func articlesCMD(g *globalFlags) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "articles",
		Short: "List markdown articles of a run",
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run id")
	_ = cmd.MarkFlagRequired("run-id")
	cmd.RunE = withApp(g, func(ctx context.Context, a *app) (any, error) {
		articles, err := a.engine.Articles(ctx, runID)
		if err != nil {
			return nil, err
		}
		return map[string]any{"articles": articles}, nil
	})
	return cmd
}

func runCMD(g *globalFlags) *cobra.Command {
	f := &researchFlags{}
	var voice string
	var skipBrand bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Research, write every brief and run the brand loop in one go",
	}
	f.bind(cmd)
	cmd.Flags().StringVar(&voice, "voice", "", "brand voice guidelines (defaults to config)")
	cmd.Flags().BoolVar(&skipBrand, "skip-brand", false, "stop after writing")
	cmd.RunE = withApp(g, func(ctx context.Context, a *app) (any, error) {
		opts, err := f.options()
		if err != nil {
			return nil, err
		}
		return a.engine.RunAll(ctx, engine.RunAllOptions{Research: opts, Voice: voice, SkipBrand: skipBrand})
	})
	return cmd
}
