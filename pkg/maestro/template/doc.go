// Package template provides {{var}} placeholder expansion for prompt
// templates.
//
// The llm_model node uses templates like:
//
//	Analyse ceci : {{in_1}} en te basant sur cela : {{in_2}}
//
// where {{in_1}}..{{in_4}} are bound to the node's resolved inputs. The
// expansion policy for unbound placeholders is configurable; prompt building
// uses Substitute, which erases them.
package template
