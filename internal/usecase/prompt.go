package usecase

import (
	"fmt"
	"strings"

	"reflection-journal/internal/domain"
)

const (
	summarySystemPrompt = "You are a helpful assistant tasked with summarizing the conversation for users to then log the summary into their reflection journal. Write in the first-person."

	emotionSystemPrompt = "You classify the emotions the user expressed in the conversation that follows. " +
		"Choose only from this list: Joy, Sadness, Fear, Anger, Frustration. " +
		"Reply with the matching labels separated by commas and nothing else. Always return at least one label."

	peopleSystemPrompt = "You extract the people the user mentioned in the conversation that follows. " +
		"Reply with their names or roles separated by commas and nothing else. " +
		"Do not include the user or the assistant. If nobody was mentioned, reply with None."

	topicSystemPrompt = "You extract the main topics the user talked about in the conversation that follows. " +
		"Reply with short topic labels of one to three words separated by commas and nothing else. " +
		"If there are no clear topics, reply with None."

	weeklySystemPrompt = "You are a helpful assistant that writes weekly summaries of a reflection journal. Write in the first-person."

	answerSystemPrompt = "You are an AI assistant analyzing journal entries. Use the provided context to answer the user's question."
)

var suggestedQuestions = []string{
	"What brings me the most joy?",
	"What drains my energy most?",
	"How do I demonstrate love and care?",
	"What are some recurring themes from my entries?",
	"What book recommendations do you have based on my entries?",
}

// SuggestedQuestions returns a copy of the canned Ask prompts.
func SuggestedQuestions() []string {
	return append([]string(nil), suggestedQuestions...)
}

func confidantePrompt(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "your friend"
	}
	return fmt.Sprintf("You are a close confidante. Your friend, %s, will tell you how they are feeling and what's on their mind. "+
		"Listen intently, prompt them to open up and share more about their thoughts and feelings without judgement. "+
		"Be a friendly, supportive presence, and give a neutral, safe and comfortable tone. "+
		"Compliment and encourage your friend as much as possible.", name)
}

func summaryUserPrompt(day string) string {
	return fmt.Sprintf("Summarize the main points of the conversation, highlighting key emotions and discussion points. "+
		"Format the summary as a concise journal entry. Today's date is %s. "+
		"Do not add extra information or assumptions which are not part of the conversation.", day)
}

// instructed prefixes turns with the given instructions.
func instructed(turns []domain.Turn, instructions ...domain.Turn) []domain.Turn {
	out := make([]domain.Turn, 0, len(instructions)+len(turns))
	out = append(out, instructions...)
	return append(out, turns...)
}

func system(text string) domain.Turn {
	return domain.Turn{Role: domain.RoleSystem, Text: text}
}

func user(text string) domain.Turn {
	return domain.Turn{Role: domain.RoleUser, Text: text}
}

// weeklyPrompt renders one week's entries, which must already be in
// chronological order.
func weeklyPrompt(start, end string, entries []domain.Entry) []domain.Turn {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a comprehensive weekly summary of my journal entries from %s to %s. ", start, end)
	b.WriteString("Describe the main themes, emotional patterns and significant events of the week. ")
	b.WriteString("Do not add information that is not in the entries.\n\nEntries:")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n(%s): %s", e.Date, strings.TrimSpace(e.Summary))
	}
	return []domain.Turn{system(weeklySystemPrompt), user(b.String())}
}

// renderEntry formats one entry as an Ask context block.
func renderEntry(e domain.Entry) string {
	return fmt.Sprintf("Date: %s, Time: %s\nSummary: %s\nEmotions: %s\nPeople: %s\nTopics: %s",
		e.Date, e.Time,
		strings.TrimSpace(e.Summary),
		listOrNone(domain.EmotionStrings(e.Emotions)),
		listOrNone(e.People),
		listOrNone(e.Topics),
	)
}

func listOrNone(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}
	return strings.Join(values, ", ")
}

func answerPrompt(context, question string) []domain.Turn {
	return []domain.Turn{
		system(answerSystemPrompt),
		user(fmt.Sprintf("Context: %s\n\nQuestion: %s", context, question)),
	}
}
