package handler

import (
	"math"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"taskmanager/internal/apperr"
	"taskmanager/internal/repository"
)

// Paginator turns page/page_size query parameters into a repository.Page.
type Paginator struct {
	DefaultSize int
	MaxSize     int
}

type pageRequest struct {
	number int
	size   int
}

// Page is the paginated list envelope.
type Page[T any] struct {
	Count    int     `json:"count"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
	Results  []T     `json:"results"`
}

func (p Paginator) parse(c *gin.Context) (pageRequest, repository.Page, error) {
	size := p.DefaultSize
	if v := c.Query("page_size"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			size = n
		}
	}
	if p.MaxSize > 0 && size > p.MaxSize {
		size = p.MaxSize
	}
	if size < 1 {
		size = 1
	}

	number := 1
	if v := c.Query("page"); v != "" {
		n, err := strconv.Atoi(v)
		// the offset (n-1)*size must fit in an int
		if err != nil || n < 1 || n-1 > math.MaxInt/size {
			return pageRequest{}, repository.Page{}, apperr.NotFound("Invalid page.")
		}
		number = n
	}
	return pageRequest{number: number, size: size}, repository.Page{Limit: size, Offset: (number - 1) * size}, nil
}

// wrap builds the envelope, rejecting pages past the last one. Page 1 is always valid.
func wrap[T any](c *gin.Context, req pageRequest, total int, items []T) (*Page[T], error) {
	if req.number > 1 && (req.number-1)*req.size >= total {
		return nil, apperr.NotFound("Invalid page.")
	}
	out := &Page[T]{Count: total, Results: items}
	if out.Results == nil {
		out.Results = []T{}
	}
	if req.number*req.size < total {
		u := pageURL(c, req.number+1)
		out.Next = &u
	}
	if req.number > 1 {
		u := pageURL(c, req.number-1)
		out.Previous = &u
	}
	return out, nil
}

func pageURL(c *gin.Context, number int) string {
	u := url.URL{
		Scheme: requestScheme(c.Request),
		Host:   c.Request.Host,
		Path:   c.Request.URL.Path,
	}
	q := c.Request.URL.Query()
	if number <= 1 {
		q.Del("page")
	} else {
		q.Set("page", strconv.Itoa(number))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func requestScheme(r *http.Request) string {
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		return proto
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

func absoluteURL(c *gin.Context, path string) string {
	u := url.URL{Scheme: requestScheme(c.Request), Host: c.Request.Host, Path: path}
	return u.String()
}
