/*
Package markov provides an in-memory toolkit for training order-N Markov chain
models on a speaker's past lines and generating new lines in the same voice.

A Model is built once, from tagged sentences, and is immutable afterwards. It
can be merged with other models of the same order, serialized to a versioned
JSON document and read back, and shared freely between goroutines. Generation
is a bounded random walk over the chain whose output is filtered by an overlap
guard, so that lines copied verbatim from the training corpus are never
returned. A Registry holds one live Model per speaker and swaps them
atomically when they are retrained or reloaded.

For a complete usage example, see the README.md file.
*/
package markov
