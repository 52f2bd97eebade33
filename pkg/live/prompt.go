package live

import (
	"fmt"
	"strings"
)

// IntroTopic is the topic value that requests the onboarding introduction
// instead of a monitoring handover.
const IntroTopic = "INTRO_ONBOARDING"

// StartNudge is sent as a user turn right after open on fresh starts with a
// topic, since the model otherwise waits for the user to speak.
const StartNudge = "System Trigger: Start discussion/intro now."

// InstructionParams holds everything the live system instruction is built
// from.
type InstructionParams struct {
	Name       string
	Honorific  string
	Indonesian bool

	// Memory and Tasks are pre-rendered context blocks.
	Memory string
	Tasks  string

	// Reconnect marks a resumed session; Transcript is replayed.
	Reconnect  bool
	Transcript string

	// Topic and Prompt only apply on fresh starts.
	Topic  string
	Prompt string
}

func (p InstructionParams) languageName() string {
	if p.Indonesian {
		return "Bahasa Indonesia"
	}
	return "English"
}

func (p InstructionParams) pick(en, id string) string {
	if p.Indonesian {
		return id
	}
	return en
}

// Block identifies the conditional section appended to the base
// instruction.
type Block int

const (
	BlockNone Block = iota
	BlockReconnect
	BlockIntro
	BlockTopic
	BlockNotification
)

// SelectBlock returns the single conditional block for p. A reconnect
// excludes topic and prompt; on a fresh start a topic takes precedence
// over a prompt.
func SelectBlock(p InstructionParams) Block {
	switch {
	case p.Reconnect:
		if p.Transcript == "" {
			return BlockNone
		}
		return BlockReconnect
	case p.Topic == IntroTopic:
		return BlockIntro
	case p.Topic != "":
		return BlockTopic
	case p.Prompt != "":
		return BlockNotification
	default:
		return BlockNone
	}
}

// BuildInstruction renders the voice-mode system instruction.
func BuildInstruction(p InstructionParams) string {
	var b strings.Builder

	fmt.Fprintf(&b, `You are JARVIS. Voice Mode.
Address user as: "%s".
User Name: "%s".
Language: %s.

CURRENT MEMORY CONTEXT:
%s

CURRENT TASKS:
%s

PROTOCOL:
1. **Use Context First**: You have direct access to the memory and tasks above.
2. **Information & Actions**: If the user asks for ANY real-time info (News, Weather), Database items (Docs, Calendar), or Task Management:
   - Step A: IMMEDIATELY say a provisional response like: "%s" to acknowledge the request.
   - Step B: CALL the tool '%s' with the exact query.
   - Step C: When the tool returns, speak the result naturally.
3. **NEVER** hallucinate web search results or database content. ALWAYS use the tool.
4. **Tone**: Mirror the user's register. Formal input gets a formal reply; casual input gets a relaxed, local-idiom reply.
`,
		p.Honorific, p.Name, p.languageName(), p.Memory, p.Tasks,
		p.pick("One moment, accessing core systems...", "Tunggu sebentar, saya cek..."),
		ConsultToolName,
	)

	switch SelectBlock(p) {
	case BlockReconnect:
		fmt.Fprintf(&b, `
IMPORTANT - RECONNECTION DETECTED:
The previous connection was interrupted.
Here is the immediate transcript of what was just said in this session.
RESUME from here naturally.

RECENT SESSION TRANSCRIPT:
%s
`, p.Transcript)

	case BlockIntro:
		fmt.Fprintf(&b, `
IMPORTANT: THIS IS THE FIRST TIME MEETING THE USER.
TASK: Give a warm, short, comprehensive introduction.

COVER THESE POINTS:
1. Welcome the user by their name ("%s").
2. Introduce yourself as JARVIS, created by developer "Osman Ghani".
3. Explain features briefly:
   - "I have an Agentic Mode for complex tasks."
   - "We are talking Live right now."
   - "I have a Monitoring Agent that checks news and weather for you."
   - "I can help with studies, real-time info, tasks, and documents."
   - "I can EDIT and GENERATE images (describe this in detail)."
4. Tell the user they can skip this intro by closing the window.

TONE: Friendly, professional, helpful.
LANGUAGE: %s.
START SPEAKING IMMEDIATELY.
`, p.Name, p.languageName())

	case BlockTopic:
		fmt.Fprintf(&b, `
IMPORTANT:
The user has explicitly requested to hear about a specific topic found by your Monitoring Agent.
TOPIC: "%s"

STARTUP INSTRUCTION:
- IMMEDIATELY start the conversation by saying: "%s %s... %s, %s"
`, p.Topic,
			p.pick("I have some information regarding", "Saya punya info tentang"),
			truncate(p.Topic, 30),
			p.Honorific,
			p.pick("if you allow, I can explain it to you.", "jika diizinkan, saya jelaskan."),
		)

	case BlockNotification:
		fmt.Fprintf(&b, `
IMPORTANT CONTEXT:
The user just heard a notification preview via TTS.
Your System Prompt just asked: "%s".

INSTRUCTION:
Wait for the user's response.
If the user says "No" or "No questions", confirm politely and stop.
If the user asks a question, answer it.
If the user is silent, say nothing.
`, p.Prompt)
	}

	return b.String()
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
