package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
)

const jokeAPI = "https://icanhazdadjoke.com/"

// localJokes are served whenever the joke API is unreachable.
var localJokes = []string{
	"I told my wife she should embrace her mistakes — she gave me a hug.",
	"Why don't skeletons fight each other? They don't have the guts.",
	"I'm reading a book about anti-gravity. It's impossible to put down.",
	"Why did the scarecrow win an award? He was outstanding in his field.",
	"I used to play piano by ear, now I use my hands.",
	"I asked my dog what's two minus two. He said nothing.",
}

// Joke fetches a dad joke from icanhazdadjoke.
type Joke struct {
	BaseURL string
	Client  *http.Client
}

// NewJoke creates the joke provider. baseURL may be empty to use the public
// endpoint.
func NewJoke(baseURL string, client *http.Client) *Joke {
	if baseURL == "" {
		baseURL = jokeAPI
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Joke{BaseURL: baseURL, Client: client}
}

// Name implements Provider.
func (j *Joke) Name() string { return "joke" }

// Fallback implements Provider.
func (j *Joke) Fallback() json.RawMessage {
	out, _ := json.Marshal(localJokes[rand.Intn(len(localJokes))])
	return out
}

// Fetch implements Provider.
func (j *Joke) Fetch(ctx context.Context, _ Params) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.BaseURL, nil)
	if err != nil {
		return nil, fmt.Errorf("joke: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Family Display Backend (https://github.com/snrmed/family-display-backend3)")

	resp, err := j.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("joke: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("joke: upstream status %d", resp.StatusCode)
	}

	var body struct {
		Joke string `json:"joke"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("joke: decode: %w", err)
	}
	if body.Joke == "" {
		return nil, fmt.Errorf("joke: empty joke in response")
	}
	return json.Marshal(body.Joke)
}
