package visitor

// View - полное состояние страницы посетителя.
type View struct {
	Loading         bool              `json:"loading"`
	Identity        string            `json:"identity"`
	ShowDisplayName bool              `json:"showDisplayName"`
	SignedInAs      string            `json:"signedInAs,omitempty"`
	Token           string            `json:"token,omitempty"`
	Questions       []QuestionView    `json:"questions"`
	Prompts         map[string]string `json:"prompts,omitempty"`
	Notice          string            `json:"notice,omitempty"`
	Inputs          Inputs            `json:"inputs"`
}

type QuestionView struct {
	ID          string       `json:"id"`
	Text        string       `json:"text"`
	AuthorLabel string       `json:"authorLabel"`
	IsAnonymous bool         `json:"isAnonymous"`
	CreatedAt   string       `json:"createdAt"`
	Answers     []AnswerView `json:"answers"`
}

type AnswerView struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	AuthorLabel string `json:"authorLabel"`
	IsAnonymous bool   `json:"isAnonymous"`
	CreatedAt   string `json:"createdAt"`
}

// Inputs - сохранённый ввод форм, чтобы после ошибки не набирать заново.
type Inputs struct {
	DisplayName string            `json:"displayName,omitempty"`
	Question    string            `json:"question,omitempty"`
	Answers     map[string]string `json:"answers,omitempty"`
	Email       string            `json:"email,omitempty"`
}

func (in Inputs) clone() Inputs {
	out := in
	out.Answers = make(map[string]string, len(in.Answers))
	for k, v := range in.Answers {
		out.Answers[k] = v
	}
	return out
}
