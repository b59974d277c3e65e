package main

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"strings"

	arg "github.com/alexflint/go-arg"

	"github.com/golangast/sentimenter/neural/nnu/bert"
	"github.com/golangast/sentimenter/neural/nnu/sentiment"
	"github.com/golangast/sentimenter/neural/tokenizer"
)

func noErr(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func classify(m *sentiment.Model, wp *tokenizer.WordPiece, text string, showTokens bool) {
	prob, err := sentiment.PredictSentiment(m, wp, text)
	noErr(err)
	label := "neg"
	if prob >= 0.5 {
		label = "pos"
	}
	fmt.Printf("%.4f\t%s\t%s\n", prob, label, text)
	if showTokens {
		ids := wp.Encode(text, m.Config().MaxLen)
		tokens := make([]string, len(ids))
		for i, id := range ids {
			tokens[i] = wp.Token(id)
		}
		fmt.Printf("tokens: %s\n", strings.Join(tokens, " "))
	}
}

func main() {
	args := struct {
		Vocab      string `arg:"required" help:"wordpiece vocabulary, one token per line"`
		Encoder    string `arg:"required" help:"pretrained encoder gob"`
		Checkpoint string `arg:"required" help:"trained head snapshot"`
		Config     string `help:"YAML file the model was trained with"`
		Tokens     bool   `help:"also print the wordpiece breakdown of each input"`
		Text       string `arg:"positional" help:"review text; reads stdin lines when omitted"`
	}{}
	arg.MustParse(&args)

	cfg := sentiment.DefaultConfig()
	if args.Config != "" {
		var err error
		cfg, err = sentiment.LoadConfig(args.Config)
		noErr(err)
	}

	wp, err := tokenizer.LoadVocab(args.Vocab)
	noErr(err)
	encoder, err := bert.LoadEncoder(args.Encoder)
	noErr(err)

	model, err := sentiment.NewModel(encoder, cfg)
	noErr(err)
	noErr(sentiment.LoadCheckpoint(args.Checkpoint, model.NamedParameters()))

	if args.Text != "" {
		classify(model, wp, args.Text, args.Tokens)
		return
	}

	sc := bufio.NewScanner(os.Stdin)
	sc.Buffer(make([]byte, 0, 1<<20), 1<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		classify(model, wp, line, args.Tokens)
	}
	noErr(sc.Err())
}
