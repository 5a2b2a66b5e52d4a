// Package ontology defines the static schema of the knowledge graph: entity
// and relationship type enums, the canonical alias table used for duplicate
// suppression, and the type-compatibility rules for proposed relationships.
//
// The canonical table is process-wide read-only data, loaded once; nothing
// mutates it at runtime.
package ontology

import "strings"

// EntityType classifies nodes extracted from decision text
type EntityType string

const (
	EntityTechnology   EntityType = "technology"   // PostgreSQL, React, Neo4j
	EntityConcept      EntityType = "concept"      // microservices, REST API, caching
	EntityPattern      EntityType = "pattern"      // singleton, repository pattern
	EntitySystem       EntityType = "system"       // authentication system, payment gateway
	EntityPerson       EntityType = "person"       // team members, stakeholders
	EntityOrganization EntityType = "organization" // companies, teams
)

// ValidEntityType reports whether s names a known entity type
func ValidEntityType(s string) bool {
	switch EntityType(s) {
	case EntityTechnology, EntityConcept, EntityPattern, EntitySystem, EntityPerson, EntityOrganization:
		return true
	}
	return false
}

// RelationType names an edge type in the knowledge graph
type RelationType string

const (
	// Entity-to-entity relationships
	RelIsA           RelationType = "IS_A"           // X is a type/category of Y
	RelPartOf        RelationType = "PART_OF"        // X is a component of Y
	RelDependsOn     RelationType = "DEPENDS_ON"     // X requires Y
	RelRelatedTo     RelationType = "RELATED_TO"     // X is related to Y (general)
	RelAlternativeTo RelationType = "ALTERNATIVE_TO" // X can be used instead of Y

	// Decision-to-entity
	RelInvolves RelationType = "INVOLVES"

	// Decision-to-decision
	RelSimilarTo    RelationType = "SIMILAR_TO"
	RelInfluencedBy RelationType = "INFLUENCED_BY"
	RelSupersedes   RelationType = "SUPERSEDES"
	RelContradicts  RelationType = "CONTRADICTS"
)

// EntityOnlyRelations holds the relationship types that are only ever legal
// between two Entity nodes. A proposed relationship of one of these types
// that fails validation may be downgraded to RELATED_TO rather than dropped.
var EntityOnlyRelations = map[RelationType]bool{
	RelIsA:           true,
	RelPartOf:        true,
	RelDependsOn:     true,
	RelRelatedTo:     true,
	RelAlternativeTo: true,
}

// DecisionRelations holds the relationship types legal only between two
// DecisionTrace nodes.
var DecisionRelations = map[RelationType]bool{
	RelSimilarTo:    true,
	RelInfluencedBy: true,
	RelSupersedes:   true,
	RelContradicts:  true,
}

// ValidateRelationship checks a proposed entity-to-entity relationship
// against the type-compatibility table. Returns false with a reason when
// the relationship kind cannot legally connect the given entity types.
func ValidateRelationship(rel RelationType, fromType, toType EntityType) (bool, string) {
	if !EntityOnlyRelations[rel] {
		if DecisionRelations[rel] {
			return false, "decision-to-decision relationship type between entities"
		}
		if rel == RelInvolves {
			return false, "INVOLVES connects a decision to an entity, not two entities"
		}
		return false, "unknown relationship type"
	}
	if rel == RelAlternativeTo && fromType != toType {
		return false, "alternatives must share an entity type"
	}
	return true, ""
}

// CanonicalName returns the preferred spelling for a name, or the original
// if the name is not in the alias table.
func CanonicalName(name string) string {
	if canonical, ok := canonicalNames[strings.ToLower(name)]; ok {
		return canonical
	}
	return name
}

// NormalizeName lowercases and trims a name for comparison
func NormalizeName(name string) string {
	return strings.TrimSpace(strings.ToLower(name))
}

// IsCanonicalValue reports whether name is one of the table's preferred
// spellings. Used by duplicate merging to pick the primary of a group.
func IsCanonicalValue(name string) bool {
	return canonicalValues[name]
}

// KnownAliasPair reports whether two names are linked through the canonical
// table: one is the canonical form of the other, or both normalize to the
// same canonical form.
func KnownAliasPair(a, b string) bool {
	ca, okA := canonicalNames[strings.ToLower(a)]
	cb, okB := canonicalNames[strings.ToLower(b)]
	if okA && ca == b {
		return true
	}
	if okB && cb == a {
		return true
	}
	return okA && okB && ca == cb
}

var canonicalValues = func() map[string]bool {
	set := make(map[string]bool, len(canonicalNames))
	for _, v := range canonicalNames {
		set[v] = true
	}
	return set
}()

// canonicalNames maps lowercase aliases and spelling variations to the
// single preferred entity name.
var canonicalNames = map[string]string{
	// Databases
	"postgres":      "PostgreSQL",
	"postgresql":    "PostgreSQL",
	"pg":            "PostgreSQL",
	"mongodb":       "MongoDB",
	"mongo":         "MongoDB",
	"neo4j":         "Neo4j",
	"neo":           "Neo4j",
	"redis":         "Redis",
	"mysql":         "MySQL",
	"mariadb":       "MariaDB",
	"sqlite":        "SQLite",
	"dynamodb":      "DynamoDB",
	"dynamo":        "DynamoDB",
	"cassandra":     "Cassandra",
	"elasticsearch": "Elasticsearch",
	"elastic":       "Elasticsearch",
	"es":            "Elasticsearch",

	// Programming languages
	"python":     "Python",
	"py":         "Python",
	"python3":    "Python",
	"javascript": "JavaScript",
	"js":         "JavaScript",
	"typescript": "TypeScript",
	"ts":         "TypeScript",
	"golang":     "Go",
	"go":         "Go",
	"rust":       "Rust",
	"java":       "Java",
	"kotlin":     "Kotlin",
	"swift":      "Swift",
	"c#":         "C#",
	"csharp":     "C#",
	"c++":        "C++",
	"cpp":        "C++",
	"ruby":       "Ruby",
	"php":        "PHP",

	// Frontend frameworks
	"react":     "React",
	"reactjs":   "React",
	"react.js":  "React",
	"vue":       "Vue.js",
	"vuejs":     "Vue.js",
	"vue.js":    "Vue.js",
	"angular":   "Angular",
	"angularjs": "Angular",
	"svelte":    "Svelte",
	"nextjs":    "Next.js",
	"next.js":   "Next.js",
	"next":      "Next.js",
	"nuxt":      "Nuxt.js",
	"nuxtjs":    "Nuxt.js",
	"nuxt.js":   "Nuxt.js",

	// Backend frameworks
	"fastapi":       "FastAPI",
	"fast-api":      "FastAPI",
	"django":        "Django",
	"flask":         "Flask",
	"express":       "Express.js",
	"expressjs":     "Express.js",
	"express.js":    "Express.js",
	"nestjs":        "NestJS",
	"nest.js":       "NestJS",
	"spring":        "Spring",
	"springboot":    "Spring Boot",
	"spring boot":   "Spring Boot",
	"rails":         "Ruby on Rails",
	"ruby on rails": "Ruby on Rails",
	"ror":           "Ruby on Rails",

	// API standards
	"api":        "API",
	"rest":       "REST API",
	"rest api":   "REST API",
	"restful":    "REST API",
	"graphql":    "GraphQL",
	"gql":        "GraphQL",
	"grpc":       "gRPC",
	"websocket":  "WebSocket",
	"websockets": "WebSocket",
	"ws":         "WebSocket",

	// Cloud providers
	"aws":                   "AWS",
	"amazon web services":   "AWS",
	"gcp":                   "GCP",
	"google cloud":          "GCP",
	"google cloud platform": "GCP",
	"azure":                 "Azure",
	"microsoft azure":       "Azure",

	// Containerization
	"docker":     "Docker",
	"kubernetes": "Kubernetes",
	"k8s":        "Kubernetes",
	"helm":       "Helm",

	// Message queues
	"kafka":        "Apache Kafka",
	"apache kafka": "Apache Kafka",
	"rabbitmq":     "RabbitMQ",
	"rabbit mq":    "RabbitMQ",
	"sqs":          "Amazon SQS",
	"amazon sqs":   "Amazon SQS",

	// AI/ML
	"openai":     "OpenAI",
	"gpt":        "GPT",
	"chatgpt":    "ChatGPT",
	"claude":     "Claude",
	"anthropic":  "Anthropic",
	"gemini":     "Gemini",
	"tensorflow": "TensorFlow",
	"tf":         "TensorFlow",
	"pytorch":    "PyTorch",
	"torch":      "PyTorch",

	// Testing
	"jest":       "Jest",
	"pytest":     "pytest",
	"py.test":    "pytest",
	"mocha":      "Mocha",
	"cypress":    "Cypress",
	"playwright": "Playwright",

	// ORMs
	"sqlalchemy": "SQLAlchemy",
	"prisma":     "Prisma",
	"typeorm":    "TypeORM",
	"sequelize":  "Sequelize",
	"mongoose":   "Mongoose",

	// UI libraries
	"tailwind":     "Tailwind CSS",
	"tailwindcss":  "Tailwind CSS",
	"tailwind css": "Tailwind CSS",
	"bootstrap":    "Bootstrap",
	"material ui":  "Material UI",
	"mui":          "Material UI",
	"shadcn":       "shadcn/ui",
	"shadcn/ui":    "shadcn/ui",
	"chakra":       "Chakra UI",
	"chakra ui":    "Chakra UI",

	// State management
	"redux":   "Redux",
	"zustand": "Zustand",
	"mobx":    "MobX",
	"recoil":  "Recoil",
	"jotai":   "Jotai",

	// Build tools
	"webpack": "Webpack",
	"vite":    "Vite",
	"esbuild": "esbuild",
	"rollup":  "Rollup",
	"parcel":  "Parcel",

	// Version control
	"git":       "Git",
	"github":    "GitHub",
	"gitlab":    "GitLab",
	"bitbucket": "Bitbucket",

	// Common patterns/concepts
	"microservices":         "Microservices",
	"microservice":          "Microservices",
	"monolith":              "Monolith",
	"monolithic":            "Monolith",
	"serverless":            "Serverless",
	"jwt":                   "JWT",
	"json web token":        "JWT",
	"oauth":                 "OAuth",
	"oauth2":                "OAuth 2.0",
	"oauth 2.0":             "OAuth 2.0",
	"ci/cd":                 "CI/CD",
	"ci cd":                 "CI/CD",
	"continuous integration": "CI/CD",
	"continuous deployment":  "CI/CD",
}
