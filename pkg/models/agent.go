package models

import "time"

// AgentPrompts are the four named prompt slots of an agent.
type AgentPrompts struct {
	System           string `json:"system" bson:"system"`
	QueryEvaluation  string `json:"query_evaluation" bson:"query_evaluation"`
	QueryGeneration  string `json:"query_generation" bson:"query_generation"`
	ResultFormatting string `json:"result_formatting" bson:"result_formatting"`
}

// Agent is an admin-managed configuration binding a model reference,
// prompt slots and a set of permitted connection assignments.
type Agent struct {
	ID             string       `json:"id" bson:"_id"`
	Name           string       `json:"name" bson:"name"`
	Model          string       `json:"model" bson:"model"`
	Prompts        AgentPrompts `json:"prompts" bson:"prompts"`
	ExampleQueries []string     `json:"example_queries,omitempty" bson:"example_queries,omitempty"`
	CreatedAt      time.Time    `json:"created_at" bson:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at" bson:"updated_at"`
}

// AgentConnection is a weak reference from an agent to a connection.
// Deleting the agent deletes its assignments; deleting the connection
// orphans assignments, which readers treat as missing.
type AgentConnection struct {
	ID           string    `json:"id" bson:"_id"`
	AgentID      string    `json:"agent_id" bson:"agent_id"`
	ConnectionID string    `json:"connection_id" bson:"connection_id"`
	CreatedAt    time.Time `json:"created_at" bson:"created_at"`
}
