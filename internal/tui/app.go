// Package tui は評価ワークフローのターミナルUIを提供する。
// bubbleteaのElmアーキテクチャ（Model → Update → View）に従い、
// セッション・ワークフローの状態遷移はすべてinternal/clientのコアに委譲する。
package tui

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/hitoshi/evalman/internal/client"
	"github.com/hitoshi/evalman/internal/model"
)

// screen は表示中の画面を表す。
type screen int

const (
	screenLoading screen = iota
	screenLogin
	screenOnboarding
	screenEvaluate
	screenComplete
	screenAdmin
)

// evaluateFocus は評価画面内のフォーカス位置を表す。
type evaluateFocus int

const (
	focusQ1 evaluateFocus = iota
	focusQ2
	focusComment
)

// 非同期処理の完了を通知するメッセージ群。
type (
	restoredMsg  struct{}
	loginDoneMsg struct{ err error }
	advanceDone  struct{ err error }
	submitDone   struct{ err error }
	loggedOutMsg struct{}
	adminDone    struct {
		stats      *model.Stats
		evaluators []client.Evaluator
		err        error
	}
)

// AdminAPI は管理者ホーム画面が必要とするリモート操作。
type AdminAPI interface {
	AdminStats(ctx context.Context, token string) (*model.Stats, error)
	AdminEvaluators(ctx context.Context, token string) ([]client.Evaluator, error)
}

// App はTUI全体の状態を保持するbubbleteaモデル。
type App struct {
	session  *client.SessionStore
	cursor   *client.WorkflowCursor
	form     *client.JudgmentForm
	pipeline *client.SubmissionPipeline
	adminAPI AdminAPI

	screen       screen
	focus        evaluateFocus
	emailInput   textinput.Model
	passwdInput  textinput.Model
	commentInput textinput.Model
	stats        *model.Stats
	evaluators   []client.Evaluator
	showOverlay  bool
	errMsg       string
	busy         bool
	width        int
}

// New はAppの新しいインスタンスを生成する。
func New(
	session *client.SessionStore,
	cursor *client.WorkflowCursor,
	form *client.JudgmentForm,
	pipeline *client.SubmissionPipeline,
	adminAPI AdminAPI,
) *App {
	email := textinput.New()
	email.Placeholder = "email"
	email.CharLimit = 254
	email.Focus()

	passwd := textinput.New()
	passwd.Placeholder = "password"
	passwd.CharLimit = 128
	passwd.EchoMode = textinput.EchoPassword
	passwd.EchoCharacter = '•'

	comment := textinput.New()
	comment.Placeholder = "所見（任意）"
	comment.CharLimit = 2000

	return &App{
		session:      session,
		cursor:       cursor,
		form:         form,
		pipeline:     pipeline,
		adminAPI:     adminAPI,
		screen:       screenLoading,
		emailInput:   email,
		passwdInput:  passwd,
		commentInput: comment,
	}
}

// Init は保存済みセッションの復元から開始する。
func (a *App) Init() tea.Cmd {
	return a.restoreCmd()
}

func (a *App) restoreCmd() tea.Cmd {
	return func() tea.Msg {
		a.session.Restore(context.Background())
		return restoredMsg{}
	}
}

func (a *App) loginCmd(email, password string) tea.Cmd {
	return func() tea.Msg {
		return loginDoneMsg{err: a.session.Login(context.Background(), email, password)}
	}
}

func (a *App) advanceCmd() tea.Cmd {
	return func() tea.Msg {
		return advanceDone{err: a.cursor.Advance(context.Background())}
	}
}

func (a *App) submitCmd() tea.Cmd {
	return func() tea.Msg {
		return submitDone{err: a.pipeline.Submit(context.Background())}
	}
}

func (a *App) adminCmd() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		token := a.session.Token()

		stats, err := a.adminAPI.AdminStats(ctx, token)
		if err != nil {
			return adminDone{err: err}
		}
		evaluators, err := a.adminAPI.AdminEvaluators(ctx, token)
		if err != nil {
			return adminDone{err: err}
		}
		return adminDone{stats: stats, evaluators: evaluators}
	}
}

func (a *App) logoutCmd() tea.Cmd {
	return func() tea.Msg {
		a.session.Logout(context.Background())
		return loggedOutMsg{}
	}
}

// Update はメッセージに応じて状態を遷移させる。
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		return a, nil

	case restoredMsg:
		return a.routeAfterSession()

	case loginDoneMsg:
		a.busy = false
		if msg.err != nil {
			// 資格情報の誤りとアカウント不存在は区別せずに表示する
			a.errMsg = "メールアドレスまたはパスワードが正しくありません"
			return a, nil
		}
		a.errMsg = ""
		a.passwdInput.SetValue("")
		return a.routeAfterSession()

	case advanceDone:
		a.busy = false
		if msg.err != nil {
			a.errMsg = "症例の取得に失敗しました。r キーで再試行できます"
			return a, nil
		}
		a.errMsg = ""
		if a.cursor.Phase() == client.WorkflowExhausted {
			a.screen = screenComplete
		}
		return a, nil

	case submitDone:
		a.busy = false
		if msg.err != nil {
			a.errMsg = "提出に失敗しました。入力は保持されています。Enterで再試行してください"
			return a, nil
		}
		a.errMsg = ""
		a.commentInput.SetValue("")
		a.focus = focusQ1
		if a.cursor.Phase() == client.WorkflowExhausted {
			a.screen = screenComplete
		}
		return a, nil

	case adminDone:
		a.busy = false
		if msg.err != nil {
			a.errMsg = "統計の取得に失敗しました。r キーで再試行できます"
			return a, nil
		}
		a.errMsg = ""
		a.stats = msg.stats
		a.evaluators = msg.evaluators
		return a, nil

	case loggedOutMsg:
		a.busy = false
		a.errMsg = ""
		a.stats = nil
		a.evaluators = nil
		a.screen = screenLogin
		a.emailInput.SetValue("")
		a.passwdInput.SetValue("")
		a.emailInput.Focus()
		a.passwdInput.Blur()
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}

	return a, nil
}

// routeAfterSession はセッション状態に応じた画面を決定する。
// 判定ロジックはアクセスゲートに委譲し、ここでは遷移の実行のみを行う。
func (a *App) routeAfterSession() (tea.Model, tea.Cmd) {
	var role model.Role
	if u := a.session.User(); u != nil {
		role = u.Role
	}

	decision := client.DecideLogin(a.session.Phase(), role)
	switch decision.Kind {
	case client.DecisionPending:
		a.screen = screenLoading
		return a, nil
	case client.DecisionAdmit:
		a.screen = screenLogin
		return a, nil
	}

	switch decision.Target {
	case client.RouteAdminHome:
		a.screen = screenAdmin
		a.busy = true
		return a, a.adminCmd()
	default:
		if !a.session.OnboardingAcknowledged() {
			a.screen = screenOnboarding
			return a, nil
		}
		return a.startWorkflow()
	}
}

// startWorkflow は評価画面へ遷移し、最初の症例取得を開始する。
func (a *App) startWorkflow() (tea.Model, tea.Cmd) {
	a.screen = screenEvaluate
	a.focus = focusQ1
	a.busy = true
	return a, a.advanceCmd()
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return a, tea.Quit
	}

	switch a.screen {
	case screenLogin:
		return a.handleLoginKey(msg)
	case screenOnboarding:
		return a.handleOnboardingKey(msg)
	case screenEvaluate:
		return a.handleEvaluateKey(msg)
	case screenComplete, screenAdmin:
		return a.handleHomeKey(msg)
	}
	return a, nil
}

func (a *App) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab, tea.KeyShiftTab, tea.KeyDown, tea.KeyUp:
		if a.emailInput.Focused() {
			a.emailInput.Blur()
			a.passwdInput.Focus()
		} else {
			a.passwdInput.Blur()
			a.emailInput.Focus()
		}
		return a, nil

	case tea.KeyEnter:
		if a.busy {
			return a, nil
		}
		email := a.emailInput.Value()
		password := a.passwdInput.Value()
		if email == "" || password == "" {
			a.errMsg = "メールアドレスとパスワードを入力してください"
			return a, nil
		}
		a.busy = true
		a.errMsg = ""
		return a, a.loginCmd(email, password)
	}

	var cmd tea.Cmd
	if a.emailInput.Focused() {
		a.emailInput, cmd = a.emailInput.Update(msg)
	} else {
		a.passwdInput, cmd = a.passwdInput.Update(msg)
	}
	return a, cmd
}

func (a *App) handleOnboardingKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEnter || msg.String() == " " {
		a.session.AcknowledgeOnboarding()
		return a.startWorkflow()
	}
	return a, nil
}

func (a *App) handleEvaluateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	// コメント入力中は入力確定系のキーのみ特別扱いする
	if a.focus == focusComment && a.commentInput.Focused() {
		switch msg.Type {
		case tea.KeyEsc, tea.KeyTab:
			a.commentInput.Blur()
			a.form.SetComments(a.commentInput.Value())
			a.focus = focusQ1
			return a, nil
		case tea.KeyEnter:
			a.commentInput.Blur()
			a.form.SetComments(a.commentInput.Value())
			return a.trySubmit()
		}
		var cmd tea.Cmd
		a.commentInput, cmd = a.commentInput.Update(msg)
		a.form.SetComments(a.commentInput.Value())
		return a, cmd
	}

	switch msg.Type {
	case tea.KeyTab:
		switch a.focus {
		case focusQ1:
			a.focus = focusQ2
		case focusQ2:
			a.focus = focusComment
			return a, a.commentInput.Focus()
		default:
			a.focus = focusQ1
		}
		return a, nil

	case tea.KeyEnter:
		return a.trySubmit()
	}

	switch msg.String() {
	case "1", "2", "3", "4", "5":
		score := int(msg.String()[0] - '0')
		var err error
		if a.focus == focusQ1 {
			err = a.form.SetQ1(score)
		} else {
			err = a.form.SetQ2(score)
		}
		if err == nil {
			a.errMsg = ""
		}
		return a, nil
	case "r":
		// 取得失敗後の再試行
		if a.cursor.Phase() != client.WorkflowActive && !a.busy {
			a.busy = true
			return a, a.advanceCmd()
		}
	case "o":
		a.showOverlay = !a.showOverlay
		return a, nil
	case "c":
		a.focus = focusComment
		return a, a.commentInput.Focus()
	}

	return a, nil
}

// trySubmit は提出可能な場合のみ提出コマンドを発行する。
// 送信中はフォーム側のフラグにより二重提出が防がれる。
func (a *App) trySubmit() (tea.Model, tea.Cmd) {
	if !a.form.CanSubmit() || a.cursor.Phase() != client.WorkflowActive {
		return a, nil
	}
	a.busy = true
	return a, a.submitCmd()
}

func (a *App) handleHomeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return a, tea.Quit
	case "l":
		if !a.busy {
			a.busy = true
			return a, a.logoutCmd()
		}
	case "r":
		if a.screen == screenAdmin && !a.busy {
			a.busy = true
			return a, a.adminCmd()
		}
	}
	return a, nil
}

// View は現在の画面を描画する。
func (a *App) View() string {
	switch a.screen {
	case screenLoading:
		return a.viewLoading()
	case screenLogin:
		return a.viewLogin()
	case screenOnboarding:
		return a.viewOnboarding()
	case screenEvaluate:
		return a.viewEvaluate()
	case screenComplete:
		return a.viewComplete()
	case screenAdmin:
		return a.viewAdmin()
	}
	return ""
}

func (a *App) viewLoading() string {
	return appFrame(titleStyle.Render("evalman") + "\n\n" + subtleStyle.Render("セッションを確認しています..."))
}

func (a *App) viewLogin() string {
	b := titleStyle.Render("evalman — ログイン") + "\n\n"
	b += a.emailInput.View() + "\n"
	b += a.passwdInput.View() + "\n\n"
	if a.busy {
		b += subtleStyle.Render("認証中...")
	} else {
		b += subtleStyle.Render("Tab: 項目切替  Enter: ログイン  Ctrl+C: 終了")
	}
	if a.errMsg != "" {
		b += "\n\n" + errorStyle.Render(a.errMsg)
	}
	return appFrame(b)
}

func (a *App) viewOnboarding() string {
	b := titleStyle.Render("評価を始める前に") + "\n\n"
	b += "各症例について次の2項目を評価してください。\n\n"
	b += "  Q1 受容性   1（不可）〜 4（良好）\n"
	b += "  Q2 確信度   1（低い）〜 5（高い）\n\n"
	b += "必要に応じて自由記述の所見を残せます。\n"
	b += "一度提出した評価はやり直せません。\n\n"
	b += subtleStyle.Render("Enter: 開始")
	return appFrame(b)
}

func (a *App) viewEvaluate() string {
	p := a.cursor.Progress()
	header := titleStyle.Render("症例評価") + "  " +
		subtleStyle.Render(fmt.Sprintf("進捗 %d / %d", p.Completed, p.Total))

	if a.busy && a.cursor.Phase() != client.WorkflowActive {
		return appFrame(header + "\n\n" + subtleStyle.Render("次の症例を取得しています..."))
	}

	current := a.cursor.Current()
	if current == nil {
		b := header + "\n\n" + subtleStyle.Render("症例を表示できません")
		if a.errMsg != "" {
			b += "\n\n" + errorStyle.Render(a.errMsg)
		}
		return appFrame(b)
	}

	b := header + "\n\n"
	b += labelStyle.Render("症例ID: ") + current.ID + "\n"
	if a.showOverlay {
		b += labelStyle.Render("表示中: ") + selectedStyle.Render("重畳 "+current.OverlayPath) + "\n\n"
	} else {
		b += labelStyle.Render("表示中: ") + "画像 " + current.ImagePath + "\n\n"
	}

	b += renderScale("Q1 受容性", a.form.Q1(), 4, a.focus == focusQ1) + "\n"
	b += renderScale("Q2 確信度", a.form.Q2(), 5, a.focus == focusQ2) + "\n\n"

	commentLabel := "所見: "
	if a.focus == focusComment {
		commentLabel = focusedStyle.Render("所見: ")
	}
	b += commentLabel + a.commentInput.View() + "\n\n"

	if a.busy {
		b += subtleStyle.Render("提出中...")
	} else if a.form.CanSubmit() {
		b += subtleStyle.Render("1-5: スコア選択  Tab: 移動  o: 重畳切替  c: 所見  Enter: 提出")
	} else {
		b += subtleStyle.Render("Q1とQ2を選択すると提出できます")
	}
	if a.errMsg != "" {
		b += "\n\n" + errorStyle.Render(a.errMsg)
	}
	return appFrame(b)
}

func (a *App) viewComplete() string {
	p := a.cursor.Progress()
	b := titleStyle.Render("評価完了") + "\n\n"
	b += fmt.Sprintf("割り当てられた症例の評価がすべて完了しました（%d / %d）。\n\n", p.Completed, p.Total)
	b += subtleStyle.Render("l: ログアウト  q: 終了")
	return appFrame(b)
}

func (a *App) viewAdmin() string {
	name := ""
	if u := a.session.User(); u != nil {
		name = u.Name
	}
	b := titleStyle.Render("管理者メニュー") + "\n\n"
	b += fmt.Sprintf("%s としてログインしています。\n\n", name)

	switch {
	case a.busy:
		b += subtleStyle.Render("統計を取得しています...") + "\n\n"
	case a.stats != nil:
		b += labelStyle.Render("症例数:     ") + fmt.Sprintf("%d\n", a.stats.TotalCases)
		b += labelStyle.Render("評価者数:   ") + fmt.Sprintf("%d\n", a.stats.TotalEvaluators)
		b += labelStyle.Render("評価済み:   ") + fmt.Sprintf("%d\n", a.stats.CompletedEvaluations)
		b += labelStyle.Render("評価待ち:   ") + fmt.Sprintf("%d\n\n", a.stats.PendingEvaluations)

		if len(a.evaluators) > 0 {
			b += labelStyle.Render("評価者の進捗") + "\n"
			for _, e := range a.evaluators {
				b += fmt.Sprintf("  %-20s %d / %d\n", e.Name, e.Completed, e.Total)
			}
			b += "\n"
		}
	}

	b += "評価者アカウントの作成とCSVエクスポートは\nAPIから行ってください。\n\n"
	b += subtleStyle.Render("r: 更新  l: ログアウト  q: 終了")
	if a.errMsg != "" {
		b += "\n\n" + errorStyle.Render(a.errMsg)
	}
	return appFrame(b)
}

// renderScale はスコア選択肢を1行で描画する。
func renderScale(label string, selected, max int, focused bool) string {
	prefix := label + "  "
	if focused {
		prefix = focusedStyle.Render(label) + "  "
	}
	line := prefix
	for i := 1; i <= max; i++ {
		mark := fmt.Sprintf("[%d]", i)
		if i == selected {
			mark = selectedStyle.Render(fmt.Sprintf("[%d]", i))
		}
		line += mark + " "
	}
	return line
}
