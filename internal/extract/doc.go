// Package extract turns free text into a knowledge graph by prompting a
// language model through five stages (entity extraction, phrase selection,
// mention recognition, relation extraction, predicate description) and
// decoding the line-oriented answers. It defines the Pipeline (pure model
// orchestration), the Service (dedup, lifecycle, async dispatch), the Store
// interface (persistence) and the domain models.
package extract
