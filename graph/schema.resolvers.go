package graph

import (
	"context"

	"go.uber.org/zap"

	"github.com/UkralStul/salon-qa-board/internal/visitor"
)

// === Mutation Resolvers ===

// Ошибки записи и входа уже отражены в представлении посетителя,
// клиенту они возвращаются ещё и кодом в errors.

func (r *mutationResolver) SubmitQuestion(ctx context.Context, displayName *string, text string) (bool, error) {
	v, err := ForContext(ctx)
	if err != nil {
		return false, err
	}
	if err := v.SubmitQuestion(ctx, deref(displayName), text); err != nil {
		r.logger().Debug("question rejected", zap.Error(err))
		return false, err
	}
	return true, nil
}

func (r *mutationResolver) SubmitAnswer(ctx context.Context, questionID string, displayName *string, text string) (bool, error) {
	v, err := ForContext(ctx)
	if err != nil {
		return false, err
	}
	if err := v.SubmitAnswer(ctx, questionID, deref(displayName), text); err != nil {
		r.logger().Debug("answer rejected", zap.String("question_id", questionID), zap.Error(err))
		return false, err
	}
	return true, nil
}

func (r *mutationResolver) SignIn(ctx context.Context, email string, password string) (bool, error) {
	v, err := ForContext(ctx)
	if err != nil {
		return false, err
	}
	if err := v.SignIn(ctx, email, password); err != nil {
		return false, err
	}
	return true, nil
}

func (r *mutationResolver) SignOut(ctx context.Context) (bool, error) {
	v, err := ForContext(ctx)
	if err != nil {
		return false, err
	}
	if err := v.SignOut(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func (r *mutationResolver) DismissNotice(ctx context.Context) (bool, error) {
	v, err := ForContext(ctx)
	if err != nil {
		return false, err
	}
	v.DismissNotice()
	return true, nil
}

// === Query Resolvers ===

func (r *queryResolver) View(ctx context.Context) (*visitor.View, error) {
	v, err := ForContext(ctx)
	if err != nil {
		return nil, err
	}
	view := v.View()
	return &view, nil
}

// === Subscription Resolvers ===

// View сразу отдаёт текущее представление, затем новое после каждого
// изменения. Изменения, пришедшие пока клиент не прочитал кадр, сливаются.
func (r *subscriptionResolver) View(ctx context.Context) (<-chan *visitor.View, error) {
	v, err := ForContext(ctx)
	if err != nil {
		return nil, err
	}

	ch := make(chan *visitor.View, 1)
	go func() {
		defer close(ch)
		for {
			view := v.View()
			select {
			case ch <- &view:
			case <-ctx.Done():
				return
			}
			select {
			case <-v.Updates():
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// === Boilerplate: Связывание резолверов с интерфейсами схемы ===

// Mutation returns MutationResolver implementation.
func (r *Resolver) Mutation() MutationResolver { return &mutationResolver{r} }

// Query returns QueryResolver implementation.
func (r *Resolver) Query() QueryResolver { return &queryResolver{r} }

// Subscription returns SubscriptionResolver implementation.
func (r *Resolver) Subscription() SubscriptionResolver { return &subscriptionResolver{r} }

type mutationResolver struct{ *Resolver }
type queryResolver struct{ *Resolver }
type subscriptionResolver struct{ *Resolver }
