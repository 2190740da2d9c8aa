package webhook

// GitHub webhook payload types, trimmed to the fields the bot reads.

type IssueCommentEvent struct {
	Action     string     `json:"action"`
	Issue      Issue      `json:"issue"`
	Comment    Comment    `json:"comment"`
	Changes    *Changes   `json:"changes,omitempty"`
	Repository Repository `json:"repository"`
	Sender     User       `json:"sender"`
}

type PullRequestEvent struct {
	Action      string      `json:"action"`
	Number      int         `json:"number"`
	PullRequest PullRequest `json:"pull_request"`
	Label       *Label      `json:"label,omitempty"`
	Repository  Repository  `json:"repository"`
	Sender      User        `json:"sender"`
}

type InstallationEvent struct {
	Action string `json:"action"`
	Sender User   `json:"sender"`
}

type Issue struct {
	Number int    `json:"number"`
	URL    string `json:"url"`
	Title  string `json:"title"`
}

type Comment struct {
	ID   int64  `json:"id"`
	Body string `json:"body"`
	User User   `json:"user"`
}

// Changes carries the previous comment body for "edited" actions.
type Changes struct {
	Body struct {
		From string `json:"from"`
	} `json:"body"`
}

type PullRequest struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
	State  string `json:"state"`
}

type Label struct {
	Name string `json:"name"`
}

type Repository struct {
	FullName string `json:"full_name"`
	Name     string `json:"name"`
	Owner    User   `json:"owner"`
}

type User struct {
	Login string `json:"login"`
}
