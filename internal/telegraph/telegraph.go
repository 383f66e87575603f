package telegraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const DefaultBaseURL = "https://api.telegra.ph"

// Node — узел контента Telegraph: строка или элемент
type Node any

// Element — элемент Telegraph
type Element struct {
	Tag      string            `json:"tag"`
	Attrs    map[string]string `json:"attrs,omitempty"`
	Children []Node            `json:"children,omitempty"`
}

type response[T any] struct {
	OK     bool   `json:"ok"`
	Error  string `json:"error"`
	Result T      `json:"result"`
}

type account struct {
	AccessToken string `json:"access_token"`
}

type page struct {
	URL string `json:"url"`
}

// Client — публикация страниц на telegra.ph
type Client struct {
	BaseURL    string
	AuthorName string
	AuthorURL  string
	HTTP       *http.Client

	mu    sync.Mutex
	token string
}

func NewClient() *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		AuthorName: "X",
		HTTP:       &http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) call(ctx context.Context, method string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/"+method, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegraph %s: http %d", method, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	var r response[account]
	err := c.call(ctx, "createAccount", url.Values{
		"short_name":  {c.AuthorName},
		"author_name": {c.AuthorName},
	}, &r)
	if err != nil {
		return "", err
	}
	if !r.OK || r.Result.AccessToken == "" {
		return "", fmt.Errorf("telegraph createAccount: %s", r.Error)
	}
	c.token = r.Result.AccessToken
	return c.token, nil
}

// Paste — опубликовать HTML как страницу, вернуть её URL
func (c *Client) Paste(ctx context.Context, title, content string) (string, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return "", err
	}
	nodes, err := ToNodes(content)
	if err != nil {
		return "", err
	}
	body, err := json.Marshal(nodes)
	if err != nil {
		return "", err
	}
	form := url.Values{
		"access_token": {token},
		"title":        {title},
		"author_name":  {c.AuthorName},
		"content":      {string(body)},
	}
	if c.AuthorURL != "" {
		form.Set("author_url", c.AuthorURL)
	}
	var r response[page]
	if err := c.call(ctx, "createPage", form, &r); err != nil {
		return "", err
	}
	if !r.OK || r.Result.URL == "" {
		return "", fmt.Errorf("telegraph createPage: %s", r.Error)
	}
	return r.Result.URL, nil
}

// теги, которые принимает Telegraph
var allowed = map[atom.Atom]bool{
	atom.A: true, atom.Aside: true, atom.B: true, atom.Blockquote: true, atom.Br: true,
	atom.Code: true, atom.Em: true, atom.Figcaption: true, atom.Figure: true, atom.H3: true,
	atom.H4: true, atom.Hr: true, atom.I: true, atom.Iframe: true, atom.Img: true,
	atom.Li: true, atom.Ol: true, atom.P: true, atom.Pre: true, atom.S: true,
	atom.Strong: true, atom.U: true, atom.Ul: true, atom.Video: true,
}

// ToNodes — HTML во фрагмент узлов Telegraph.
// Неизвестные теги разворачиваются в детей, перевод строки становится <br>.
func ToNodes(content string) ([]Node, error) {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	parsed, err := html.ParseFragment(strings.NewReader(content), body)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	var out []Node
	for _, n := range parsed {
		out = append(out, convert(n)...)
	}
	if len(out) == 0 {
		return nil, errors.New("empty content")
	}
	return out, nil
}

func convert(n *html.Node) []Node {
	switch n.Type {
	case html.TextNode:
		var out []Node
		for i, part := range strings.Split(n.Data, "\n") {
			if i > 0 {
				out = append(out, Element{Tag: "br"})
			}
			if part != "" {
				out = append(out, part)
			}
		}
		return out
	case html.ElementNode:
		var children []Node
		for ch := n.FirstChild; ch != nil; ch = ch.NextSibling {
			children = append(children, convert(ch)...)
		}
		if !allowed[n.DataAtom] {
			return children
		}
		el := Element{Tag: n.Data, Children: children}
		for _, a := range n.Attr {
			if a.Key == "href" || a.Key == "src" {
				if el.Attrs == nil {
					el.Attrs = map[string]string{}
				}
				el.Attrs[a.Key] = a.Val
			}
		}
		return []Node{el}
	}
	return nil
}
