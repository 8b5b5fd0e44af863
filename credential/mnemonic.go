package credential

import (
	"strings"
)

// DefaultMnemonicWords is the word count of a generated recovery phrase.
const DefaultMnemonicWords = 12

// GenerateMnemonic produces a recovery word sequence from negotiator entropy.
// The returned warnings are the negotiator's degradation warnings; a phrase
// generated at T3 must be shown to the user with its insecurity disclosed.
func (h *Hasher) GenerateMnemonic(wordCount int) (string, []string, error) {
	if wordCount <= 0 {
		wordCount = DefaultMnemonicWords
	}
	res, err := h.neg.RandomBytes(wordCount)
	if err != nil {
		return "", nil, err
	}
	words := make([]string, wordCount)
	for i, b := range res.Value {
		words[i] = wordlist[int(b)%len(wordlist)]
	}
	return strings.Join(words, " "), res.Warnings, nil
}

// NormalizeMnemonic canonicalizes a user-entered phrase for lookup:
// lower-cased, single-spaced.
func NormalizeMnemonic(phrase string) string {
	return strings.Join(strings.Fields(strings.ToLower(phrase)), " ")
}

// wordlist is a compact recovery vocabulary. Words are short, distinct, and
// unambiguous when read aloud.
var wordlist = []string{
	"acid", "aloe", "amber", "anchor", "apple", "arrow", "ash", "atlas",
	"badge", "basil", "beacon", "birch", "blaze", "bloom", "bolt", "brook",
	"cabin", "candle", "canyon", "cedar", "chalk", "cliff", "clover", "coral",
	"crane", "crystal", "delta", "drift", "dune", "eagle", "ember", "fable",
	"falcon", "fern", "flint", "forge", "fossil", "frost", "garnet", "glade",
	"globe", "grain", "granite", "grove", "harbor", "hazel", "heron", "hollow",
	"ivory", "jade", "juniper", "kelp", "lagoon", "lantern", "larch", "ledge",
	"lilac", "lotus", "lunar", "maple", "marble", "meadow", "mesa", "mint",
	"moss", "noble", "north", "oasis", "ochre", "onyx", "opal", "orbit",
	"osprey", "otter", "pearl", "pebble", "pine", "plume", "prairie", "prism",
	"quartz", "quill", "raven", "reef", "ridge", "river", "rowan", "rustic",
	"sable", "sage", "sandal", "sequoia", "shale", "sierra", "silver", "slate",
	"sparrow", "spruce", "summit", "sundial", "tempo", "thistle", "tidal", "topaz",
	"torch", "trail", "tundra", "umber", "valley", "vapor", "velvet", "violet",
	"walnut", "wander", "willow", "winter", "wolf", "yarrow", "zenith", "zephyr",
	"alder", "bison", "comet", "dusk", "echo", "fjord", "gulf", "haven",
}
