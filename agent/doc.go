// Package agent runs the LLM strategies behind agent nodes: a single-shot
// default, a ReAct tool-use loop and a plan-and-execute pipeline.
package agent
