package enrichment

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Extraction prompts use few-shot examples with short reasoning so smaller
// models produce parseable JSON. Bumping PROMPT_VERSION in config invalidates
// cached responses when these templates change.

const decisionExtractionPrompt = `Analyze this conversation and extract any technical decisions made.

## What constitutes a decision?
A decision is a choice made between alternatives that affects the project. It should have:
- A trigger (problem, requirement, or question that prompted the decision)
- Context (background information, constraints)
- Options (alternatives that were considered)
- The actual decision (what was chosen)
- Rationale (why this choice was made)

## Examples

### Example 1: Single clear decision
Conversation:
"We need to pick a database. I looked at PostgreSQL and MongoDB. PostgreSQL seems better for our relational data needs and the team already knows SQL. Let's go with PostgreSQL."

Output:
[
  {
    "trigger": "Need to select a database for the project",
    "context": "Team has SQL experience, data is relational in nature",
    "options": ["PostgreSQL", "MongoDB"],
    "decision": "Use PostgreSQL as the primary database",
    "rationale": "Better fit for relational data and team already has SQL expertise",
    "confidence": 0.95
  }
]

### Example 2: Multiple decisions in one conversation
Conversation:
"For the frontend, React makes sense since we're already using it elsewhere. For styling, I considered Tailwind vs CSS modules. Tailwind will speed up development, so let's use that."

Output:
[
  {
    "trigger": "Need to choose frontend framework",
    "context": "Team already using React in other projects",
    "options": ["React"],
    "decision": "Use React for the frontend",
    "rationale": "Consistency with existing projects and team familiarity",
    "confidence": 0.9
  },
  {
    "trigger": "Need to choose a styling approach",
    "context": "Building frontend with React",
    "options": ["Tailwind CSS", "CSS modules"],
    "decision": "Use Tailwind CSS for styling",
    "rationale": "Faster development velocity with utility classes",
    "confidence": 0.85
  }
]

### Example 3: No decisions (just discussion)
Conversation:
"What do you think about microservices? I've heard they can be complex but offer good scalability. We should probably discuss this more with the team before deciding anything."

Output:
[]

## Instructions
For each decision found, provide:
- trigger: What prompted the decision (be specific)
- context: Relevant background (constraints, requirements, team situation)
- options: All alternatives considered (include the chosen one)
- decision: What was decided (clear statement)
- rationale: Why this choice (key factors)
- confidence: 0.0-1.0 (how clear/complete the decision is)

If no clear decisions are found, return an empty array [].

## Conversation to analyze:
%s

Return ONLY valid JSON, no markdown code blocks or explanation.`

const entityExtractionPrompt = `Extract technical entities from this decision text.

## Entity Types
- technology: Specific tools, languages, frameworks, databases (e.g., PostgreSQL, React, Python)
- concept: Abstract ideas, principles, methodologies (e.g., microservices, REST API, caching)
- pattern: Design and architectural patterns (e.g., singleton, repository pattern, CQRS)
- system: Software systems, services, components (e.g., authentication system, payment gateway)
- person: People mentioned (team members, stakeholders)
- organization: Companies, teams, departments

## Examples

Input: "We chose React over Vue for the frontend"
Output:
{
  "entities": [
    {"name": "React", "type": "technology", "confidence": 0.95},
    {"name": "Vue", "type": "technology", "confidence": 0.95},
    {"name": "frontend", "type": "concept", "confidence": 0.85}
  ],
  "reasoning": "React and Vue are frontend frameworks (technology). Frontend is the general concept being discussed."
}

Input: "JWT tokens stored in Redis for session management"
Output:
{
  "entities": [
    {"name": "JWT", "type": "technology", "confidence": 0.95},
    {"name": "Redis", "type": "technology", "confidence": 0.95},
    {"name": "session management", "type": "concept", "confidence": 0.85}
  ],
  "reasoning": "JWT is an authentication token standard (technology). Redis is a database (technology). Session management is the concept being implemented."
}

Input: "Implementing the repository pattern with an ORM for data access"
Output:
{
  "entities": [
    {"name": "repository pattern", "type": "pattern", "confidence": 0.95},
    {"name": "ORM", "type": "technology", "confidence": 0.9},
    {"name": "data access", "type": "concept", "confidence": 0.8}
  ],
  "reasoning": "Repository pattern is a design pattern. An ORM is a technology. Data access is the concept being addressed."
}
%s
## Decision Text
%s

Extract entities with your reasoning. Return ONLY valid JSON:
{
  "entities": [{"name": "string", "type": "entity_type", "confidence": 0.0-1.0}, ...],
  "reasoning": "Brief explanation of your categorization"
}`

const entityRelationshipPrompt = `Identify relationships between these entities.

## Relationship Types
- IS_A: X is a type/category of Y (e.g., "PostgreSQL IS_A Database")
- PART_OF: X is a component of Y (e.g., "React Flow PART_OF React ecosystem")
- DEPENDS_ON: X requires/depends on Y (e.g., "Next.js DEPENDS_ON React")
- RELATED_TO: X is generally related to Y (e.g., "FastAPI RELATED_TO Python")
- ALTERNATIVE_TO: X can be used instead of Y (e.g., "MongoDB ALTERNATIVE_TO PostgreSQL")

## Examples

Entities: ["React", "Vue", "frontend"]
Context: "We chose React over Vue for the frontend"
Output:
{
  "relationships": [
    {"from": "React", "to": "frontend", "type": "PART_OF", "confidence": 0.9},
    {"from": "Vue", "to": "frontend", "type": "PART_OF", "confidence": 0.9},
    {"from": "React", "to": "Vue", "type": "ALTERNATIVE_TO", "confidence": 0.95}
  ],
  "reasoning": "React and Vue are both frontend frameworks (PART_OF frontend). They were considered as alternatives."
}

Entities: ["PostgreSQL", "Redis", "caching", "database"]
Context: "Using PostgreSQL as the primary database with Redis for caching"
Output:
{
  "relationships": [
    {"from": "PostgreSQL", "to": "database", "type": "IS_A", "confidence": 0.95},
    {"from": "Redis", "to": "caching", "type": "PART_OF", "confidence": 0.9},
    {"from": "Redis", "to": "database", "type": "IS_A", "confidence": 0.85}
  ],
  "reasoning": "PostgreSQL is a relational database. Redis is used for caching but is also a database (key-value store)."
}

Entities: ["Next.js", "React", "TypeScript", "frontend"]
Context: "Building the frontend with Next.js and TypeScript"
Output:
{
  "relationships": [
    {"from": "Next.js", "to": "React", "type": "DEPENDS_ON", "confidence": 0.95},
    {"from": "Next.js", "to": "frontend", "type": "PART_OF", "confidence": 0.9},
    {"from": "TypeScript", "to": "frontend", "type": "PART_OF", "confidence": 0.85}
  ],
  "reasoning": "Next.js is built on top of React (DEPENDS_ON). Both Next.js and TypeScript are part of the frontend stack."
}

## Entities: %s
## Context: %s

Identify relationships. Only include relationships you're confident about (>0.7 confidence).
Return ONLY valid JSON:
{
  "relationships": [{"from": "entity", "to": "entity", "type": "RELATIONSHIP_TYPE", "confidence": 0.0-1.0}, ...],
  "reasoning": "Brief explanation"
}`

const decisionRelationshipPrompt = `Analyze if these two decisions have a significant relationship.

## Relationship Types
- SUPERSEDES: The newer decision explicitly replaces or changes the older decision
- CONTRADICTS: The decisions fundamentally conflict (choosing opposite approaches)

## Examples

Decision A (Jan 15): "Using PostgreSQL for the primary database"
Decision B (Mar 20): "Migrating to MongoDB for horizontal scaling needs"
Output:
{
  "relationship": "SUPERSEDES",
  "confidence": 0.9,
  "reasoning": "Decision B explicitly changes the database choice from PostgreSQL to MongoDB, superseding Decision A."
}

Decision A (Feb 1): "REST API for all client communication"
Decision B (Feb 15): "GraphQL for mobile app queries to reduce overfetching"
Output:
{
  "relationship": null,
  "confidence": 0.0,
  "reasoning": "These decisions are complementary - GraphQL is added for mobile while REST remains for other clients."
}

Decision A (Jan 10): "Monolithic architecture for faster initial development"
Decision B (Jun 1): "Breaking into microservices for better scaling"
Output:
{
  "relationship": "SUPERSEDES",
  "confidence": 0.85,
  "reasoning": "Decision B transitions from the monolithic approach in Decision A to microservices."
}

Decision A (Mar 1): "Using JWT for stateless authentication"
Decision B (Mar 5): "Using session cookies for authentication"
Output:
{
  "relationship": "CONTRADICTS",
  "confidence": 0.9,
  "reasoning": "JWT (stateless) and session cookies (stateful) are conflicting authentication approaches."
}

## Decision A (%s):
Trigger: %s
Decision: %s
Rationale: %s

## Decision B (%s):
Trigger: %s
Decision: %s
Rationale: %s

Analyze the relationship. Return ONLY valid JSON:
{
  "relationship": "SUPERSEDES" | "CONTRADICTS" | null,
  "confidence": 0.0-1.0,
  "reasoning": "Brief explanation"
}`

// categoryHints bias entity extraction toward the vocabulary of the detected
// decision category. The general category adds nothing.
var categoryHints = map[Category]string{
	CategoryArchitecture: "This text discusses system architecture; pay attention to systems, components and patterns.",
	CategoryTechnology:   "This text discusses tooling choices; pay attention to concrete technologies and their alternatives.",
	CategoryProcess:      "This text discusses team process; pay attention to workflows, practices and the people involved.",
}

func buildDecisionExtractionPrompt(conversationText string) string {
	return fmt.Sprintf(decisionExtractionPrompt, conversationText)
}

func buildEntityExtractionPrompt(text string, category Category) string {
	hint := ""
	if h, ok := categoryHints[category]; ok {
		hint = "\n## Hint\n" + h + "\n"
	}
	return fmt.Sprintf(entityExtractionPrompt, hint, text)
}

func buildEntityRelationshipPrompt(names []string, context string) string {
	if strings.TrimSpace(context) == "" {
		context = "General technical discussion"
	}
	encoded, _ := json.Marshal(names)
	return fmt.Sprintf(entityRelationshipPrompt, string(encoded), context)
}

func buildDecisionRelationshipPrompt(a, b DecisionView) string {
	return fmt.Sprintf(decisionRelationshipPrompt,
		orUnknown(a.CreatedAt), a.Trigger, a.Decision, a.Rationale,
		orUnknown(b.CreatedAt), b.Trigger, b.Decision, b.Rationale,
	)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
