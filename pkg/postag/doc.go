// Package postag provides part-of-speech taggers for the markov package.
//
// Two strategies share one statistical Model: FastTagger labels every word on
// its own from lexicon, suffix and shape evidence, while AccurateTagger decodes
// the whole sentence with the Viterbi algorithm so that neighboring tags inform
// each other. Tags follow the universal tagset. A small English model is
// embedded and used when no other model is supplied.
package postag
