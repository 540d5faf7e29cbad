package custody

import "github.com/lvlup-dev/ascent/pkg/models"

// The generator draws every scenario from this closed catalog: per-category
// template families filled from slot pools, wrapped in an agent/project
// envelope. No free-form LLM generation happens here, which keeps prompts
// reproducible and the fingerprint window meaningful.

// criterion is one scoring dimension with its base weight. Weights per
// category sum to 100 before complexity scaling.
type criterion struct {
	name   string
	weight float64
}

// family is one prompt template. The format string consumes one value from
// each listed pool, in order. Legendary families are reserved for Legendary
// complexity and vice versa.
type family struct {
	name      string
	format    string
	slots     []int
	legendary bool
}

// categoryContent bundles everything the generator and scorer need for one
// category.
type categoryContent struct {
	criteria []criterion
	pools    [][]string
	families []family
	markers  []string
}

// agentRoles is the envelope persona line per agent kind.
var agentRoles = map[models.AgentKind]string{
	models.AgentImperium: "the platform's architect and standards bearer",
	models.AgentGuardian: "the platform's security and reliability warden",
	models.AgentSandbox:  "the platform's experimental prototyper",
	models.AgentConquest: "the platform's performance hunter",
}

// projects is the shared envelope context pool.
var projects = []string{
	"the Ascent orchestration platform",
	"a telemetry ingestion pipeline",
	"a customer-facing billing service",
	"an internal deployment console",
	"a knowledge-base search service",
	"a fleet of build runners",
	"a real-time notification hub",
	"a multi-region object store gateway",
}

// complexityTones sets the expectation line per complexity.
var complexityTones = map[models.Complexity]string{
	models.ComplexityBasic:        "Keep it short and correct; fundamentals only.",
	models.ComplexityIntermediate: "Aim for working-engineer depth with concrete specifics.",
	models.ComplexityAdvanced:     "Go beyond the obvious: edge cases, tradeoffs, failure modes.",
	models.ComplexityExpert:       "Senior-review bar: rigorous, quantified, battle-tested reasoning.",
	models.ComplexityMaster:       "Principal-level: shape the solution space, not just a solution.",
	models.ComplexityLegendary:    "Definitive treatment: exhaustive, authoritative, assumption-breaking.",
}

// depthMultipliers scale the depth criterion's weight before renormalizing,
// so harder scenarios grade depth more heavily.
var depthMultipliers = map[models.Complexity]float64{
	models.ComplexityBasic:        0.7,
	models.ComplexityIntermediate: 0.85,
	models.ComplexityAdvanced:     1.0,
	models.ComplexityExpert:       1.15,
	models.ComplexityMaster:       1.3,
	models.ComplexityLegendary:    1.5,
}

// depthCriterion is the one criterion complexity scaling applies to.
const depthCriterion = "depth"

var catalog = map[models.Category]categoryContent{
	models.CategoryKnowledge: {
		criteria: []criterion{
			{"accuracy", 30}, {"coverage", 25}, {"depth", 20}, {"structure", 15}, {"code", 10},
		},
		markers: []string{
			"example", "specifically", "tradeoff", "because", "in practice",
			"definition", "contrast", "guarantee",
		},
		pools: [][]string{
			{
				"distributed consensus", "CAP tradeoffs", "container networking",
				"TLS handshakes", "garbage collection", "message queue semantics",
				"database indexing", "cache coherence", "API versioning",
				"schema migrations",
			},
			{
				"a high-traffic payment platform", "an on-call incident review",
				"a new-hire onboarding guide", "a design review with skeptical peers",
				"a postmortem appendix", "a capacity planning exercise",
				"an architecture decision record", "a cross-team knowledge base",
			},
			{
				"cover at least three failure modes", "contrast two alternative approaches",
				"include concrete numbers where they matter", "call out common misconceptions",
				"keep it actionable for operators", "cite the invariants that must hold",
				"explain the tradeoffs explicitly", "note what changes at 10x scale",
			},
		},
		families: []family{
			{name: "explain", format: "Explain %s in the context of %s. Your write-up must %s.", slots: []int{0, 1, 2}},
			{name: "compare", format: "Compare the main approaches to %s for %s, and %s.", slots: []int{0, 1, 2}},
			{name: "troubleshoot", format: "Walk through diagnosing a production issue rooted in %s during %s. Make sure you %s.", slots: []int{0, 1, 2}},
			{name: "teach", format: "Write a concise internal guide on %s aimed at %s. The guide should %s.", slots: []int{0, 1, 2}},
			{name: "review", format: "Assess how %s is typically mishandled in %s, then %s.", slots: []int{0, 1, 2}},
			{name: "qa", format: "Answer the questions an auditor would ask about %s in %s; in particular, %s.", slots: []int{0, 1, 2}},
			{name: "synthesis", format: "Produce a definitive reference on %s spanning theory and operations for %s: reconcile conflicting best practices, quantify every tradeoff, and %s.", slots: []int{0, 1, 2}, legendary: true},
		},
	},
	models.CategoryCodeQuality: {
		criteria: []criterion{
			{"correctness", 30}, {"code", 30}, {"depth", 15}, {"structure", 15}, {"coverage", 10},
		},
		markers: []string{
			"refactor", "test", "interface", "coupling", "readability",
			"regression", "review", "abstraction",
		},
		pools: [][]string{
			{
				"error handling paths", "dependency injection wiring",
				"concurrency primitives", "API surface design", "table-driven tests",
				"interface boundaries", "configuration parsing", "retry logic",
				"pagination helpers", "serialization layers",
			},
			{
				"a 50k-line Go monolith", "a freshly extracted microservice",
				"a library consumed by five teams", "a legacy service with no tests",
				"a hot code path under load", "a codebase mid-migration",
				"an open source project with external contributors",
				"a service owned by a rotating crew",
			},
			{
				"show before/after code", "name the smells you find",
				"keep the public API stable", "make the change reviewable in one sitting",
				"preserve existing behavior exactly",
				"add tests that would have caught the regression",
				"justify every new dependency", "leave the code simpler than you found it",
			},
		},
		families: []family{
			{name: "refactor", format: "Plan a refactor of %s inside %s. You must %s.", slots: []int{0, 1, 2}},
			{name: "review", format: "Review a pull request touching %s in %s. As you critique it, %s.", slots: []int{0, 1, 2}},
			{name: "harden", format: "Harden %s in %s against regressions; %s.", slots: []int{0, 1, 2}},
			{name: "design", format: "Design %s from scratch for %s and %s.", slots: []int{0, 1, 2}},
			{name: "debug", format: "A bug hides in %s of %s. Describe how you would corner it, and %s.", slots: []int{0, 1, 2}},
			{name: "test", format: "Build a test strategy for %s in %s that can %s.", slots: []int{0, 1, 2}},
			{name: "overhaul", format: "Lead a ground-up overhaul of %s across %s: set the conventions, sequence the migration without a freeze, and %s.", slots: []int{0, 1, 2}, legendary: true},
		},
	},
	models.CategorySecurity: {
		criteria: []criterion{
			{"risk_awareness", 35}, {"coverage", 20}, {"depth", 20}, {"structure", 15}, {"code", 10},
		},
		markers: []string{
			"threat", "vulnerability", "mitigation", "attacker", "least privilege",
			"encryption", "audit", "exploit",
		},
		pools: [][]string{
			{
				"input validation", "secret storage", "session management",
				"dependency supply chains", "privilege boundaries", "audit logging",
				"TLS configuration", "injection attacks", "token lifecycle",
				"rate limiting abuse",
			},
			{
				"a public REST API", "an internal admin panel",
				"a multi-tenant SaaS backend", "a CI/CD pipeline",
				"a webhook receiver", "a file upload service",
				"a payment integration", "a staging environment with prod data",
			},
			{
				"rank findings by exploitability", "map each issue to a concrete mitigation",
				"consider both external and insider threats",
				"note what telemetry would detect the attack",
				"state the blast radius of each weakness",
				"prioritize fixes by effort vs risk",
				"include at least one defense-in-depth layer",
				"flag anything that needs a rollback plan",
			},
		},
		families: []family{
			{name: "audit", format: "Audit %s in %s. For every finding, %s.", slots: []int{0, 1, 2}},
			{name: "threatmodel", format: "Build a threat model around %s for %s; %s.", slots: []int{0, 1, 2}},
			{name: "harden", format: "Propose a hardening plan for %s in %s. Along the way, %s.", slots: []int{0, 1, 2}},
			{name: "respond", format: "An attacker just abused %s in %s. Lay out the response, and %s.", slots: []int{0, 1, 2}},
			{name: "review", format: "Review the current handling of %s in %s with fresh eyes, and %s.", slots: []int{0, 1, 2}},
			{name: "policy", format: "Draft the security policy governing %s for %s; the policy must %s.", slots: []int{0, 1, 2}},
			{name: "redteam", format: "Run a full red-team exercise against %s in %s: chain the weaknesses into a realistic attack path, then switch sides and %s.", slots: []int{0, 1, 2}, legendary: true},
		},
	},
	models.CategoryPerformance: {
		criteria: []criterion{
			{"efficiency", 30}, {"depth", 25}, {"code", 20}, {"coverage", 15}, {"structure", 10},
		},
		markers: []string{
			"latency", "throughput", "bottleneck", "profile", "benchmark",
			"cache", "p99", "allocation",
		},
		pools: [][]string{
			{
				"N+1 query patterns", "lock contention", "memory allocation churn",
				"cold cache starts", "serialization overhead", "connection pooling",
				"batch processing windows", "index selection", "GC pressure",
				"tail latency",
			},
			{
				"an API with a 250ms p99 target", "a nightly batch that overruns its window",
				"a service at 10x organic growth", "a dashboard with angry users",
				"a queue consumer falling behind", "a database at 80% CPU",
				"a serverless function with cold starts",
				"a read-heavy reporting endpoint",
			},
			{
				"estimate the win of each change", "propose how to measure before and after",
				"find the cheapest fix first", "keep correctness intact",
				"state when to stop optimizing",
				"identify the real bottleneck before touching code",
				"quantify cost in both latency and dollars",
				"call out any tradeoff against readability",
			},
		},
		families: []family{
			{name: "diagnose", format: "Diagnose %s plaguing %s. Be sure to %s.", slots: []int{0, 1, 2}},
			{name: "optimize", format: "Optimize away %s in %s, and %s.", slots: []int{0, 1, 2}},
			{name: "budget", format: "Set a performance budget covering %s for %s; %s.", slots: []int{0, 1, 2}},
			{name: "capacity", format: "Produce a capacity plan accounting for %s in %s. While planning, %s.", slots: []int{0, 1, 2}},
			{name: "profile", format: "Describe a profiling session hunting %s inside %s; %s.", slots: []int{0, 1, 2}},
			{name: "tune", format: "Tune %s for %s without new hardware, and %s.", slots: []int{0, 1, 2}},
			{name: "warroom", format: "Run the performance war room for %s crippling %s: triage live, direct the fixes in order of leverage, and %s.", slots: []int{0, 1, 2}, legendary: true},
		},
	},
	models.CategoryInnovation: {
		criteria: []criterion{
			{"novelty", 35}, {"depth", 20}, {"coverage", 20}, {"structure", 15}, {"code", 10},
		},
		markers: []string{
			"experiment", "hypothesis", "novel", "assumption", "prototype",
			"iterate", "risk", "pilot",
		},
		pools: [][]string{
			{
				"developer workflow friction", "flaky test triage",
				"incident response tooling", "knowledge sharing",
				"code review latency", "onboarding ramp time", "alert fatigue",
				"release confidence", "documentation drift",
				"cross-team dependencies",
			},
			{
				"a 12-person platform team", "a startup about to double headcount",
				"an org with five-nines ambitions", "a team drowning in toil",
				"a company migrating to the cloud", "a remote-first engineering org",
				"a team with a failed previous attempt",
				"a regulated environment with change control",
			},
			{
				"challenge at least one sacred assumption", "include a cheap first experiment",
				"describe what failure would look like",
				"borrow an idea from another discipline", "make the rollout reversible",
				"define the metric that proves it worked",
				"consider second-order effects", "keep the blast radius of a flop tiny",
			},
		},
		families: []family{
			{name: "reimagine", format: "Reimagine how %s is handled for %s. Your proposal must %s.", slots: []int{0, 1, 2}},
			{name: "crossover", format: "Attack %s at %s using techniques borrowed from a different field, and %s.", slots: []int{0, 1, 2}},
			{name: "moonshot", format: "Pitch a moonshot that eliminates %s for %s; %s.", slots: []int{0, 1, 2}},
			{name: "simplify", format: "Find the radical simplification hiding inside %s at %s, then %s.", slots: []int{0, 1, 2}},
			{name: "invert", format: "Invert the usual approach to %s for %s and argue for it; %s.", slots: []int{0, 1, 2}},
			{name: "prototype", format: "Sketch a one-week prototype tackling %s for %s. In the plan, %s.", slots: []int{0, 1, 2}},
			{name: "manifesto", format: "Write the manifesto that permanently reframes %s for %s: tear down the current orthodoxy, build the replacement, and %s.", slots: []int{0, 1, 2}, legendary: true},
		},
	},
	models.CategorySelfImprovement: {
		criteria: []criterion{
			{"reflection", 35}, {"structure", 20}, {"depth", 20}, {"coverage", 15}, {"code", 10},
		},
		markers: []string{
			"improve", "habit", "feedback", "measure", "mistake", "adjust",
			"practice", "baseline",
		},
		pools: [][]string{
			{
				"feedback incorporation", "failure pattern recognition",
				"estimation accuracy", "response structure habits",
				"scope discipline", "asking clarifying questions",
				"summarization quality", "consistency across sessions",
				"self-review checklists", "prioritization heuristics",
			},
			{
				"a string of failed test cycles", "feedback that responses run too long",
				"a pattern of missed edge cases", "scores plateauing for a week",
				"a category with chronic low marks", "an approved-then-reverted change",
				"praise for depth but dings on clarity",
				"a transfer of patterns from a peer agent",
			},
			{
				"quote the evidence honestly", "commit to one measurable change",
				"define how to verify the improvement",
				"identify the root habit, not the symptom", "avoid vague resolutions",
				"set a checkpoint to re-evaluate",
				"compare against the best recent attempt",
				"name what to stop doing entirely",
			},
		},
		families: []family{
			{name: "retrospect", format: "Run a retrospective on %s, prompted by %s. You must %s.", slots: []int{0, 1, 2}},
			{name: "calibrate", format: "Recalibrate your approach to %s after %s; %s.", slots: []int{0, 1, 2}},
			{name: "habit", format: "Design a new working habit around %s in response to %s, and %s.", slots: []int{0, 1, 2}},
			{name: "plan", format: "Write an improvement plan targeting %s, triggered by %s. The plan should %s.", slots: []int{0, 1, 2}},
			{name: "postmortem", format: "Write the postmortem connecting %s to %s; %s.", slots: []int{0, 1, 2}},
			{name: "audit", format: "Audit your own track record on %s given %s, and %s.", slots: []int{0, 1, 2}},
			{name: "reinvention", format: "Stage a full reinvention of how you handle %s, taking %s as the breaking point: discard what failed, rebuild the practice from first principles, and %s.", slots: []int{0, 1, 2}, legendary: true},
		},
	},
	models.CategoryCrossAI: {
		criteria: []criterion{
			{"collaboration", 35}, {"structure", 20}, {"coverage", 20}, {"depth", 15}, {"code", 10},
		},
		markers: []string{
			"handoff", "protocol", "consensus", "escalate", "coordinate",
			"ownership", "verify", "arbitration",
		},
		pools: [][]string{
			{
				"task handoff protocols", "shared memory conventions",
				"conflicting recommendation resolution", "capability discovery",
				"result verification between agents", "workload partitioning",
				"escalation rules", "shared vocabulary drift", "trust scoring",
				"duplicate work detection",
			},
			{
				"a four-agent platform with staggered schedules",
				"a pair of agents with overlapping domains",
				"an agent fleet after a knowledge transfer",
				"a new agent joining an established trio",
				"agents sharing one rate-limited model budget",
				"a disagreement over a proposed fix",
				"a pipeline where one agent reviews another",
				"an incident requiring all agents at once",
			},
			{
				"define the protocol precisely", "handle the disagreement case explicitly",
				"keep each agent's autonomy intact",
				"describe the failure mode if coordination breaks",
				"bound the coordination overhead", "make the handoff auditable",
				"avoid a single point of failure", "state who owns the final call",
			},
		},
		families: []family{
			{name: "protocol", format: "Specify %s for %s. You must %s.", slots: []int{0, 1, 2}},
			{name: "negotiate", format: "Mediate %s within %s, and %s.", slots: []int{0, 1, 2}},
			{name: "delegate", format: "Set up delegation rules for %s across %s; %s.", slots: []int{0, 1, 2}},
			{name: "verify", format: "Design how %s gets verified in %s. As part of it, %s.", slots: []int{0, 1, 2}},
			{name: "arbitrate", format: "Arbitrate the edge cases of %s for %s, and %s.", slots: []int{0, 1, 2}},
			{name: "sync", format: "Keep %s coherent across %s; your design should %s.", slots: []int{0, 1, 2}},
			{name: "federation", format: "Draft the full federation charter governing %s for %s: cover membership, conflict, failure, and evolution of the rules themselves, and %s.", slots: []int{0, 1, 2}, legendary: true},
		},
	},
	models.CategoryExperiment: {
		criteria: []criterion{
			{"rigor", 35}, {"structure", 25}, {"depth", 20}, {"coverage", 10}, {"code", 10},
		},
		markers: []string{
			"hypothesis", "control", "variance", "sample", "significance",
			"baseline", "falsify", "confound",
		},
		pools: [][]string{
			{
				"A/B measurement design", "load test scenarios",
				"canary rollout criteria", "chaos injection plans",
				"benchmark methodology", "sampling bias controls",
				"hypothesis falsification", "metric sensitivity analysis",
				"regression detection thresholds", "experiment stopping rules",
			},
			{
				"a production system with real users",
				"a staging cluster with synthetic load", "a feature flag platform",
				"a low-traffic service where significance is hard",
				"a system with strong seasonality",
				"an experiment that contradicts intuition",
				"a platform with three prior failed tests",
				"an environment where rollback is expensive",
			},
			{
				"state the null hypothesis plainly", "pre-register the success criteria",
				"bound the blast radius", "plan the analysis before collecting data",
				"list the confounders and controls",
				"define the minimum detectable effect",
				"include a kill switch condition",
				"describe what result would change your mind",
			},
		},
		families: []family{
			{name: "design", format: "Design %s for %s. The design must %s.", slots: []int{0, 1, 2}},
			{name: "falsify", format: "Construct the experiment that could falsify assumptions behind %s in %s; %s.", slots: []int{0, 1, 2}},
			{name: "measure", format: "Define the measurement plan for %s on %s, and %s.", slots: []int{0, 1, 2}},
			{name: "chaos", format: "Plan a chaos exercise exercising %s against %s. You must %s.", slots: []int{0, 1, 2}},
			{name: "benchmark", format: "Build a benchmark suite around %s for %s; %s.", slots: []int{0, 1, 2}},
			{name: "analyze", format: "Lay out how you would analyze results from %s gathered on %s, and %s.", slots: []int{0, 1, 2}},
			{name: "grandtrial", format: "Architect the grand trial for %s across %s: multiple interlocking hypotheses, staged rollouts, pre-committed analyses, and %s.", slots: []int{0, 1, 2}, legendary: true},
		},
	},
}

// familiesFor returns the template families usable at the given complexity.
// Legendary scenarios draw from the reserved legendary family; everything
// else uses the regular ones.
func familiesFor(content categoryContent, complexity models.Complexity) []family {
	wantLegendary := complexity == models.ComplexityLegendary
	var out []family
	for _, f := range content.families {
		if f.legendary == wantLegendary {
			out = append(out, f)
		}
	}
	return out
}

// criteriaWeights builds the scenario's criteria map: the category's base
// table with the depth weight scaled by complexity, renormalized to 100.
func criteriaWeights(category models.Category, complexity models.Complexity) map[string]float64 {
	content := catalog[category]
	weights := make(map[string]float64, len(content.criteria))
	var sum float64
	for _, c := range content.criteria {
		w := c.weight
		if c.name == depthCriterion {
			w *= depthMultipliers[complexity]
		}
		weights[c.name] = w
		sum += w
	}
	for name, w := range weights {
		weights[name] = w * 100 / sum
	}
	return weights
}

// markersFor returns the category's marker terms for the scorer.
func markersFor(category models.Category) []string {
	return catalog[category].markers
}
