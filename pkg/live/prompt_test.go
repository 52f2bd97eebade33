package live

import (
	"strings"
	"testing"
)

func TestSelectBlock(t *testing.T) {
	tests := []struct {
		name string
		p    InstructionParams
		want Block
	}{
		{"plain", InstructionParams{}, BlockNone},
		{"reconnect", InstructionParams{Reconnect: true, Transcript: "\nUSER: hi"}, BlockReconnect},
		{"reconnect ignores topic and prompt", InstructionParams{Reconnect: true, Transcript: "x", Topic: "news", Prompt: "any questions?"}, BlockReconnect},
		{"reconnect without transcript", InstructionParams{Reconnect: true, Topic: "news"}, BlockNone},
		{"intro", InstructionParams{Topic: IntroTopic}, BlockIntro},
		{"topic", InstructionParams{Topic: "Bitcoin rallies"}, BlockTopic},
		{"topic wins over prompt", InstructionParams{Topic: "Bitcoin rallies", Prompt: "questions?"}, BlockTopic},
		{"prompt", InstructionParams{Prompt: "questions?"}, BlockNotification},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SelectBlock(tt.p); got != tt.want {
				t.Errorf("SelectBlock() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBuildInstruction(t *testing.T) {
	base := InstructionParams{
		Name:      "Tony",
		Honorific: "Sir",
		Memory:    "likes coffee",
		Tasks:     "No pending tasks or reminders.",
	}

	t.Run("base sections", func(t *testing.T) {
		got := BuildInstruction(base)
		for _, want := range []string{`Address user as: "Sir"`, `User Name: "Tony"`, "Language: English", "likes coffee", ConsultToolName, "One moment, accessing core systems..."} {
			if !strings.Contains(got, want) {
				t.Errorf("instruction missing %q", want)
			}
		}
		if strings.Contains(got, "RECONNECTION DETECTED") {
			t.Error("fresh start should not carry reconnect block")
		}
	})

	t.Run("indonesian", func(t *testing.T) {
		p := base
		p.Indonesian = true
		got := BuildInstruction(p)
		if !strings.Contains(got, "Bahasa Indonesia") || !strings.Contains(got, "Tunggu sebentar") {
			t.Error("indonesian instruction missing localized text")
		}
	})

	t.Run("reconnect excludes topic", func(t *testing.T) {
		p := base
		p.Reconnect = true
		p.Transcript = "\nUSER: what time is it"
		p.Topic = "Some news topic"
		p.Prompt = "Any questions?"
		got := BuildInstruction(p)
		if !strings.Contains(got, "RECENT SESSION TRANSCRIPT:\n\nUSER: what time is it") {
			t.Error("reconnect block missing transcript")
		}
		if strings.Contains(got, "Monitoring Agent.") || strings.Contains(got, "notification preview") {
			t.Error("reconnect carried topic or prompt block")
		}
	})

	t.Run("topic truncated", func(t *testing.T) {
		p := base
		p.Topic = "Central bank raises interest rates again this quarter"
		got := BuildInstruction(p)
		if !strings.Contains(got, "I have some information regarding Central bank raises interest r... Sir") {
			t.Errorf("topic handover not truncated to 30 chars:\n%s", got)
		}
	})

	t.Run("intro", func(t *testing.T) {
		p := base
		p.Topic = IntroTopic
		got := BuildInstruction(p)
		if !strings.Contains(got, "FIRST TIME MEETING THE USER") || !strings.Contains(got, `("Tony")`) {
			t.Error("intro block missing")
		}
	})
}
