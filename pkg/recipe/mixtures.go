package recipe

import (
	"github.com/ken/embed_trainer/internal/config"
	"github.com/ken/embed_trainer/pkg/dataset"
)

// baseModel is the pretrained embedding model both built-in mixtures
// fine-tune
const baseModel = "sentence-transformers/all-MiniLM-L6-v2"

// All returns the built-in recipes
func All() []*Recipe {
	return []*Recipe{MixBasic(), MixTuned()}
}

// mixTrain is the shared train mixture of the two built-in recipes:
// seven datasets covering all four record shapes, routed to the loss
// matching each shape. Ranking loss for plain pairs and triplets,
// classification loss for labeled pairs, CoSENT for scored pairs.
func mixTrain() []DatasetEntry {
	return []DatasetEntry{
		{Spec: dataset.Spec{Alias: "all-nli-pair", Name: "sentence-transformers/all-nli", Config: "pair", Split: "train[:10000]"}, Loss: "mnr"},
		{Spec: dataset.Spec{Alias: "all-nli-pair-class", Name: "sentence-transformers/all-nli", Config: "pair-class", Split: "train[:10000]"}, Loss: "softmax"},
		{Spec: dataset.Spec{Alias: "all-nli-pair-score", Name: "sentence-transformers/all-nli", Config: "pair-score", Split: "train[:10000]"}, Loss: "cosent"},
		{Spec: dataset.Spec{Alias: "all-nli-triplet", Name: "sentence-transformers/all-nli", Config: "triplet", Split: "train[:10000]"}, Loss: "mnr"},
		{Spec: dataset.Spec{Alias: "stsb", Name: "sentence-transformers/stsb", Split: "train[:10000]"}, Loss: "cosent"},
		{Spec: dataset.Spec{Alias: "quora", Name: "sentence-transformers/quora-duplicates", Config: "pair", Split: "train[:10000]"}, Loss: "mnr"},
		{Spec: dataset.Spec{Alias: "natural-questions", Name: "sentence-transformers/natural-questions", Split: "train[:10000]"}, Loss: "mnr"},
	}
}

// mixEval holds out a slice of four of the train datasets for evaluation
func mixEval() []DatasetEntry {
	return []DatasetEntry{
		{Spec: dataset.Spec{Alias: "all-nli-triplet", Name: "sentence-transformers/all-nli", Config: "triplet", Split: "dev"}},
		{Spec: dataset.Spec{Alias: "stsb", Name: "sentence-transformers/stsb", Split: "validation"}},
		{Spec: dataset.Spec{Alias: "quora", Name: "sentence-transformers/quora-duplicates", Config: "pair", Split: "train[10000:11000]"}},
		{Spec: dataset.Spec{Alias: "natural-questions", Name: "sentence-transformers/natural-questions", Split: "train[10000:11000]"}},
	}
}

// MixBasic is the multi-dataset mixture with default training arguments:
// one epoch, default batching, save at the end of each epoch
func MixBasic() *Recipe {
	args := config.DefaultTrainingArguments()
	args.OutputDir = "models/mix-basic-all-nli-stsb-quora-nq"
	args.RunName = "mix-basic"

	return &Recipe{
		Name:    "mix-basic",
		Model:   baseModel,
		Train:   mixTrain(),
		Eval:    mixEval(),
		Args:    args,
		HubRepo: "mix-basic-all-nli-stsb-quora-nq",
	}
}

// MixTuned is the same mixture with the explicitly tuned arguments:
// no-duplicates batch sampling for the ranking losses, step-based
// evaluation and checkpointing with a retention limit, and a warmup ramp
func MixTuned() *Recipe {
	args := config.DefaultTrainingArguments()
	args.OutputDir = "models/mix-tuned-all-nli-stsb-quora-nq"
	args.RunName = "mix-tuned"
	args.Epochs = 1
	args.TrainBatchSize = 16
	args.EvalBatchSize = 16
	args.LearningRate = 2e-5
	args.WarmupRatio = 0.1
	args.Precision = "fp16"
	args.BatchSampler = config.SamplerNoDuplicates
	args.EvalStrategy = config.StrategySteps
	args.EvalSteps = 100
	args.SaveStrategy = config.StrategySteps
	args.SaveSteps = 100
	args.SaveTotalLimit = 2
	args.LoggingSteps = 100

	return &Recipe{
		Name:    "mix-tuned",
		Model:   baseModel,
		Train:   mixTrain(),
		Eval:    mixEval(),
		Args:    args,
		HubRepo: "mix-tuned-all-nli-stsb-quora-nq",
	}
}
