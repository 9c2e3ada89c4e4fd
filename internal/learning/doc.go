// Package learning records the question/answer pairs produced while learning
// mode is on, so the user can revisit the topics they asked about.
//
// Records are append-only. The generation pipeline writes them in the
// background; a failed write is logged by the caller and never surfaces to
// the user.
package learning
