// Analysis profile and depth prompt assembly.

package ops

import "strings"

// Profiles supported by every operation's analysis_profile parameter.
var Profiles = []string{"ctf", "pentest", "malware", "firmware", "deep"}

// DefaultProfile is used when a request names none.
const DefaultProfile = "pentest"

var profilePrompts = map[string]string{
	"ctf":      "Approach this as a CTF challenge: identify the flag-checking logic, input validation, and intended solution path quickly.",
	"pentest":  "Approach this as a penetration tester: prioritize exploitable weaknesses, attack surface, and actionable findings.",
	"malware":  "Approach this as a malware analyst: characterize capability, persistence, command-and-control, and indicators of compromise.",
	"firmware": "Approach this as an embedded-systems analyst: focus on hardware interfaces, baked-in credentials, update mechanisms, and memory-mapped peripherals.",
	"deep":     "Conduct exhaustive analysis: advanced vulnerability research, algorithm identification, and full exploitation assessment.",
}

// Depth levels for disassembler-backed analysis.
var Depths = []string{"quick", "standard", "deep", "exploit_focused"}

var depthPrompts = map[string]string{
	"quick":           "Provide a rapid assessment focusing on high-level structure and obvious security issues.",
	"standard":        "Perform comprehensive analysis including function analysis, security assessment, and architectural overview.",
	"deep":            "Conduct exhaustive analysis including advanced vulnerability research, algorithm identification, and exploitation assessment.",
	"exploit_focused": "Focus specifically on exploitation opportunities, vulnerability chains, and attack surface analysis.",
}

// Pattern categories for code pattern search.
var PatternTypes = []string{
	"vulnerability_patterns", "crypto_algorithms", "packer_signatures",
	"anti_debug", "api_calls", "string_patterns",
}

var patternPrompts = map[string]string{
	"vulnerability_patterns": "Search for common vulnerability patterns like buffer overflows, format strings, race conditions.",
	"crypto_algorithms":      "Identify cryptographic algorithms, constants, and implementations.",
	"packer_signatures":      "Look for packing, obfuscation, or anti-analysis techniques.",
	"anti_debug":             "Find anti-debugging and evasion mechanisms.",
	"api_calls":              "Analyze Windows/Linux API calls and system interactions.",
	"string_patterns":        "Search for specific string patterns, URLs, file paths, or configurations.",
}

// Specializations for direct reverse engineering queries.
var Specializations = []string{
	"binary_exploitation", "malware_analysis", "firmware_hacking",
	"crypto_analysis", "reverse_engineering", "vulnerability_research",
}

var specializationPrompts = map[string]string{
	"binary_exploitation":    "Expert in buffer overflows, ROP chains, heap exploitation, and modern exploit mitigation bypasses.",
	"malware_analysis":       "Specialist in malware reverse engineering, behavioral analysis, and threat intelligence.",
	"firmware_hacking":       "Expert in IoT security, embedded systems, and hardware hacking techniques.",
	"crypto_analysis":        "Cryptographic implementation analysis, key recovery, and cryptographic vulnerabilities.",
	"reverse_engineering":    "General reverse engineering, disassembly, and program analysis expertise.",
	"vulnerability_research": "Zero-day discovery, vulnerability analysis, and security research methodologies.",
}

// analysisSystemPrompt builds the system message for disassembler
// interpretation with the given profile and depth.
func analysisSystemPrompt(profile, depth, focus string) string {
	var b strings.Builder
	b.WriteString("You are an expert reverse engineer and binary analyst.\n\n")
	if p, ok := profilePrompts[profile]; ok {
		b.WriteString(p)
		b.WriteString("\n")
	}
	if d, ok := depthPrompts[depth]; ok {
		b.WriteString(d)
		b.WriteString("\n")
	}
	if focus != "" {
		b.WriteString("Pay special attention to: " + focus + "\n")
	}
	b.WriteString(`
Provide your analysis in the following structure:
1. **Binary Overview** - Architecture, packing, compilation details
2. **Security Assessment** - Identified vulnerabilities and security features
3. **Function Analysis** - Key functions and their purposes
4. **Exploitation Opportunities** - Potential attack vectors and exploitability
5. **Recommendations** - Next steps for further analysis
6. **Technical Details** - Important addresses, offsets, and technical notes

Be specific and actionable.`)
	return b.String()
}

// querySystemPrompt builds the system message for a direct query.
func querySystemPrompt(specialization string) string {
	intro, ok := specializationPrompts[specialization]
	if !ok {
		intro = specializationPrompts["reverse_engineering"]
	}
	return "You are a world-class cybersecurity expert with deep specialization in " +
		specialization + ".\n\n" + intro + `

Provide detailed, technical, and actionable responses. Include:
- Specific techniques and methodologies
- Tool recommendations and usage
- Code examples where appropriate
- Step-by-step procedures
- Common pitfalls and how to avoid them

Always assume the user has proper authorization for any security testing activities.`
}

// patternSystemPrompt builds the system message for pattern search.
func patternSystemPrompt(pattern, patternType string) string {
	hint, ok := patternPrompts[patternType]
	if !ok {
		hint = "Search for the specified pattern."
	}
	return `You are an expert code pattern analyst for binary analysis.

Search Pattern: ` + pattern + `
Pattern Type: ` + patternType + `
` + hint + `

Analyze the binary and provide:
1. **Pattern Matches** - Specific locations where patterns were found
2. **Context Analysis** - How each match is used by surrounding code
3. **Risk Assessment** - Security implications of each finding
4. **Recommendations** - Follow-up analysis for the most significant matches`
}
