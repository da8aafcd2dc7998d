package graph

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/99designs/gqlgen/graphql"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/UkralStul/salon-qa-board/internal/domain"
	"github.com/UkralStul/salon-qa-board/internal/visitor"
)

//go:embed schema.graphqls
var sourceSchema string

var parsedSchema = gqlparser.MustLoadSchema(&ast.Source{Name: "schema.graphqls", Input: sourceSchema})

// Коды ошибок в extensions.code.
const (
	CodeValidation   = "VALIDATION"
	CodeAuth         = "AUTH"
	CodeWrite        = "WRITE"
	CodeNotConnected = "NOT_CONNECTED"
	CodeInternal     = "INTERNAL"
)

// Config - зависимости исполняемой схемы.
type Config struct {
	Resolvers ResolverRoot
}

type ResolverRoot interface {
	Mutation() MutationResolver
	Query() QueryResolver
	Subscription() SubscriptionResolver
}

type MutationResolver interface {
	SubmitQuestion(ctx context.Context, displayName *string, text string) (bool, error)
	SubmitAnswer(ctx context.Context, questionID string, displayName *string, text string) (bool, error)
	SignIn(ctx context.Context, email string, password string) (bool, error)
	SignOut(ctx context.Context) (bool, error)
	DismissNotice(ctx context.Context) (bool, error)
}

type QueryResolver interface {
	View(ctx context.Context) (*visitor.View, error)
}

type SubscriptionResolver interface {
	View(ctx context.Context) (<-chan *visitor.View, error)
}

// NewExecutableSchema исполняет операции schema.graphqls поверх резолверов.
// Разбор и валидацию запроса делает обработчик gqlgen, здесь только
// вызов резолверов и сериализация выбранных полей.
func NewExecutableSchema(cfg Config) graphql.ExecutableSchema {
	return &executableSchema{resolvers: cfg.Resolvers}
}

type executableSchema struct {
	resolvers ResolverRoot
}

func (e *executableSchema) Schema() *ast.Schema {
	return parsedSchema
}

func (e *executableSchema) Complexity(typeName, field string, childComplexity int, rawArgs map[string]interface{}) (int, bool) {
	return 0, false
}

func (e *executableSchema) Exec(ctx context.Context) graphql.ResponseHandler {
	rc := graphql.GetOperationContext(ctx)

	switch rc.Operation.Operation {
	case ast.Query:
		return once(func(ctx context.Context) *graphql.Response { return e.query(ctx, rc) })
	case ast.Mutation:
		return once(func(ctx context.Context) *graphql.Response { return e.mutation(ctx, rc) })
	case ast.Subscription:
		return e.subscription(ctx, rc)
	default:
		return graphql.OneShot(graphql.ErrorResponse(ctx, "unsupported GraphQL operation"))
	}
}

func once(fn func(ctx context.Context) *graphql.Response) graphql.ResponseHandler {
	done := false
	return func(ctx context.Context) *graphql.Response {
		if done {
			return nil
		}
		done = true
		return fn(ctx)
	}
}

func (e *executableSchema) query(ctx context.Context, rc *graphql.OperationContext) *graphql.Response {
	fields := graphql.CollectFields(rc, rc.Operation.SelectionSet, []string{"Query"})
	out := graphql.NewFieldSet(fields)
	var errs gqlerror.List

	for i, field := range fields {
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("Query")
		case "__schema", "__type":
			out.Values[i] = graphql.Null
			errs = append(errs, fieldError(field, CodeInternal, "introspection is disabled"))
		case "view":
			view, err := e.resolvers.Query().View(ctx)
			if err != nil {
				out.Values[i] = graphql.Null
				errs = append(errs, presentError(field, err))
				continue
			}
			out.Values[i] = marshalView(rc, field, view)
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
	}
	return respond(out, errs)
}

// mutation выполняет корневые поля по очереди, как требует GraphQL.
func (e *executableSchema) mutation(ctx context.Context, rc *graphql.OperationContext) *graphql.Response {
	fields := graphql.CollectFields(rc, rc.Operation.SelectionSet, []string{"Mutation"})
	out := graphql.NewFieldSet(fields)
	var errs gqlerror.List
	m := e.resolvers.Mutation()

	for i, field := range fields {
		args := field.ArgumentMap(rc.Variables)
		var ok bool
		var err error
		switch field.Name {
		case "__typename":
			out.Values[i] = graphql.MarshalString("Mutation")
			continue
		case "submitQuestion":
			ok, err = m.SubmitQuestion(ctx, optionalStringArg(args, "displayName"), stringArg(args, "text"))
		case "submitAnswer":
			ok, err = m.SubmitAnswer(ctx, stringArg(args, "questionId"), optionalStringArg(args, "displayName"), stringArg(args, "text"))
		case "signIn":
			ok, err = m.SignIn(ctx, stringArg(args, "email"), stringArg(args, "password"))
		case "signOut":
			ok, err = m.SignOut(ctx)
		case "dismissNotice":
			ok, err = m.DismissNotice(ctx)
		default:
			panic("unknown field " + strconv.Quote(field.Name))
		}
		if err != nil {
			out.Values[i] = graphql.Null
			errs = append(errs, presentError(field, err))
			continue
		}
		out.Values[i] = graphql.MarshalBoolean(ok)
	}
	return respond(out, errs)
}

func (e *executableSchema) subscription(ctx context.Context, rc *graphql.OperationContext) graphql.ResponseHandler {
	fields := graphql.CollectFields(rc, rc.Operation.SelectionSet, []string{"Subscription"})
	if len(fields) != 1 {
		return graphql.OneShot(graphql.ErrorResponse(ctx, "must subscribe to exactly one stream"))
	}
	field := fields[0]
	if field.Name != "view" {
		panic("unknown field " + strconv.Quote(field.Name))
	}

	views, err := e.resolvers.Subscription().View(ctx)
	if err != nil {
		return graphql.OneShot(&graphql.Response{
			Data:   json.RawMessage("null"),
			Errors: gqlerror.List{presentError(field, err)},
		})
	}

	return func(ctx context.Context) *graphql.Response {
		select {
		case view, ok := <-views:
			if !ok {
				return nil
			}
			out := graphql.NewFieldSet(fields)
			out.Values[0] = marshalView(rc, field, view)
			return respond(out, nil)
		case <-ctx.Done():
			return nil
		}
	}
}

func respond(out *graphql.FieldSet, errs gqlerror.List) *graphql.Response {
	var buf bytes.Buffer
	out.MarshalGQL(&buf)
	return &graphql.Response{Data: buf.Bytes(), Errors: errs}
}

// === Сериализация объектов ===

// marshalObject собирает выбранные поля объекта typeName. value отдаёт
// значение одного поля, __typename обрабатывается здесь.
func marshalObject(rc *graphql.OperationContext, sel ast.SelectionSet, typeName string, value func(field graphql.CollectedField) graphql.Marshaler) graphql.Marshaler {
	fields := graphql.CollectFields(rc, sel, []string{typeName})
	out := graphql.NewFieldSet(fields)
	for i, field := range fields {
		if field.Name == "__typename" {
			out.Values[i] = graphql.MarshalString(typeName)
			continue
		}
		m := value(field)
		if m == nil {
			panic("unknown field " + strconv.Quote(typeName+"."+field.Name))
		}
		out.Values[i] = m
	}
	return out
}

func marshalView(rc *graphql.OperationContext, parent graphql.CollectedField, v *visitor.View) graphql.Marshaler {
	if v == nil {
		return graphql.Null
	}
	return marshalObject(rc, parent.Selections, "View", func(field graphql.CollectedField) graphql.Marshaler {
		switch field.Name {
		case "loading":
			return graphql.MarshalBoolean(v.Loading)
		case "identity":
			return graphql.MarshalString(strings.ToUpper(v.Identity))
		case "showDisplayName":
			return graphql.MarshalBoolean(v.ShowDisplayName)
		case "signedInAs":
			return nullableString(v.SignedInAs)
		case "token":
			return nullableString(v.Token)
		case "questions":
			list := make(graphql.Array, 0, len(v.Questions))
			for i := range v.Questions {
				list = append(list, marshalQuestion(rc, field, &v.Questions[i]))
			}
			return list
		case "prompts":
			return marshalPrompts(rc, field, v.Prompts)
		case "notice":
			return nullableString(v.Notice)
		case "inputs":
			return marshalInputs(rc, field, v.Inputs)
		}
		return nil
	})
}

func marshalQuestion(rc *graphql.OperationContext, parent graphql.CollectedField, q *visitor.QuestionView) graphql.Marshaler {
	return marshalObject(rc, parent.Selections, "Question", func(field graphql.CollectedField) graphql.Marshaler {
		switch field.Name {
		case "id":
			return graphql.MarshalID(q.ID)
		case "text":
			return graphql.MarshalString(q.Text)
		case "authorLabel":
			return graphql.MarshalString(q.AuthorLabel)
		case "isAnonymous":
			return graphql.MarshalBoolean(q.IsAnonymous)
		case "createdAt":
			return graphql.MarshalString(q.CreatedAt)
		case "answers":
			list := make(graphql.Array, 0, len(q.Answers))
			for i := range q.Answers {
				list = append(list, marshalAnswer(rc, field, &q.Answers[i]))
			}
			return list
		}
		return nil
	})
}

func marshalAnswer(rc *graphql.OperationContext, parent graphql.CollectedField, a *visitor.AnswerView) graphql.Marshaler {
	return marshalObject(rc, parent.Selections, "Answer", func(field graphql.CollectedField) graphql.Marshaler {
		switch field.Name {
		case "id":
			return graphql.MarshalID(a.ID)
		case "text":
			return graphql.MarshalString(a.Text)
		case "authorLabel":
			return graphql.MarshalString(a.AuthorLabel)
		case "isAnonymous":
			return graphql.MarshalBoolean(a.IsAnonymous)
		case "createdAt":
			return graphql.MarshalString(a.CreatedAt)
		}
		return nil
	})
}

// marshalPrompts отдаёт подсказки списком, отсортированным по ключу.
func marshalPrompts(rc *graphql.OperationContext, parent graphql.CollectedField, prompts map[string]string) graphql.Marshaler {
	keys := sortedKeys(prompts)
	list := make(graphql.Array, 0, len(keys))
	for _, key := range keys {
		message := prompts[key]
		list = append(list, marshalObject(rc, parent.Selections, "Prompt", func(field graphql.CollectedField) graphql.Marshaler {
			switch field.Name {
			case "key":
				return graphql.MarshalString(key)
			case "message":
				return graphql.MarshalString(message)
			}
			return nil
		}))
	}
	return list
}

func marshalInputs(rc *graphql.OperationContext, parent graphql.CollectedField, in visitor.Inputs) graphql.Marshaler {
	return marshalObject(rc, parent.Selections, "Inputs", func(field graphql.CollectedField) graphql.Marshaler {
		switch field.Name {
		case "displayName":
			return graphql.MarshalString(in.DisplayName)
		case "question":
			return graphql.MarshalString(in.Question)
		case "email":
			return graphql.MarshalString(in.Email)
		case "answers":
			keys := sortedKeys(in.Answers)
			list := make(graphql.Array, 0, len(keys))
			for _, qid := range keys {
				text := in.Answers[qid]
				list = append(list, marshalObject(rc, field.Selections, "AnswerInput", func(f graphql.CollectedField) graphql.Marshaler {
					switch f.Name {
					case "questionId":
						return graphql.MarshalID(qid)
					case "text":
						return graphql.MarshalString(text)
					}
					return nil
				}))
			}
			return list
		}
		return nil
	})
}

func nullableString(s string) graphql.Marshaler {
	if s == "" {
		return graphql.Null
	}
	return graphql.MarshalString(s)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// === Аргументы ===

func stringArg(args map[string]interface{}, name string) string {
	switch v := args[name].(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

func optionalStringArg(args map[string]interface{}, name string) *string {
	if args[name] == nil {
		return nil
	}
	s := stringArg(args, name)
	return &s
}

// === Ошибки ===

// presentError переводит ошибку резолвера в ошибку GraphQL с кодом.
// Подробности ошибок хранилища клиенту не отдаются.
func presentError(field graphql.CollectedField, err error) *gqlerror.Error {
	var vErr *domain.ValidationError
	var aErr *domain.AuthError
	var wErr *domain.WriteError
	switch {
	case errors.Is(err, ErrNoVisitor):
		return fieldError(field, CodeNotConnected, err.Error())
	case errors.As(err, &vErr):
		return fieldError(field, CodeValidation, vErr.Error())
	case errors.As(err, &aErr):
		return fieldError(field, CodeAuth, "invalid email or password")
	case errors.As(err, &wErr):
		return fieldError(field, CodeWrite, "could not save your post")
	default:
		return fieldError(field, CodeInternal, "internal error")
	}
}

func fieldError(field graphql.CollectedField, code, message string) *gqlerror.Error {
	gErr := &gqlerror.Error{
		Message:    message,
		Path:       ast.Path{ast.PathName(field.Alias)},
		Extensions: map[string]interface{}{"code": code},
	}
	if field.Position != nil {
		gErr.Locations = []gqlerror.Location{{Line: field.Position.Line, Column: field.Position.Column}}
	}
	return gErr
}
