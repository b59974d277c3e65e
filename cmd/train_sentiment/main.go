package main

import (
	"log"
	"math/rand"
	"os"

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

func main() {
	args := struct {
		Train       string  `arg:"required" help:"training reviews CSV with text and label columns"`
		Test        string  `arg:"required" help:"test reviews CSV"`
		Vocab       string  `arg:"required" help:"wordpiece vocabulary, one token per line"`
		Encoder     string  `arg:"required" help:"pretrained encoder gob"`
		Config      string  `help:"YAML file overriding training hyperparameters"`
		Checkpoint  string  `help:"path the best snapshot is written to"`
		ValidFrac   float64 `help:"fraction of the training set held out for validation"`
		InitEncoder bool    `help:"write a freshly initialized encoder to the encoder path and exit"`
	}{
		Checkpoint: "sentiment-model.gob",
		ValidFrac:  0.3,
	}
	arg.MustParse(&args)

	cfg := sentiment.DefaultConfig()
	if args.Config != "" {
		var err error
		cfg, err = sentiment.LoadConfig(args.Config)
		noErr(err)
	}

	wp, err := tokenizer.LoadVocab(args.Vocab)
	noErr(err)

	if args.InitEncoder {
		bcfg := bert.BaseUncasedConfig()
		bcfg.VocabSize = wp.Size()
		enc, err := bert.NewEncoder(bcfg, cfg.Seed)
		noErr(err)
		noErr(enc.Save(args.Encoder))
		log.Printf("wrote initialized encoder (%d tokens, hidden %d) to %s",
			bcfg.VocabSize, bcfg.HiddenSize, args.Encoder)
		os.Exit(0)
	}

	encoder, err := bert.LoadEncoder(args.Encoder)
	noErr(err)

	trainReviews, err := sentiment.LoadReviews(args.Train)
	noErr(err)
	testReviews, err := sentiment.LoadReviews(args.Test)
	noErr(err)

	rng := rand.New(rand.NewSource(cfg.Seed))
	trainReviews, validReviews, err := sentiment.SplitReviews(trainReviews, args.ValidFrac, rng)
	noErr(err)
	log.Printf("loaded %d train / %d valid / %d test reviews",
		len(trainReviews), len(validReviews), len(testReviews))

	trainIt, err := sentiment.NewBatchIterator(
		sentiment.EncodeReviews(wp, trainReviews, cfg.MaxLen), cfg.BatchSize, wp.PadID(), true, rng)
	noErr(err)
	validIt, err := sentiment.NewBatchIterator(
		sentiment.EncodeReviews(wp, validReviews, cfg.MaxLen), cfg.BatchSize, wp.PadID(), false, nil)
	noErr(err)
	testIt, err := sentiment.NewBatchIterator(
		sentiment.EncodeReviews(wp, testReviews, cfg.MaxLen), cfg.BatchSize, wp.PadID(), false, nil)
	noErr(err)

	model, err := sentiment.NewModel(encoder, cfg)
	noErr(err)

	result, err := sentiment.Run(model, trainIt, validIt, testIt, args.Checkpoint)
	noErr(err)
	log.Printf("best validation loss %.3f, checkpoint at %s", result.BestValidLoss, args.Checkpoint)
}
