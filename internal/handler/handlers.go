package handler

import (
	"context"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"gopkg.in/telebot.v4"

	"gemini-image-bot/internal/config"
	"gemini-image-bot/internal/gemini"
	"gemini-image-bot/internal/session"
	"gemini-image-bot/internal/storage"
)

// minImageBytes filters out thumbnails and junk payloads when caching uploads
const minImageBytes = 1000

const (
	reverseInstruction = "请根据这张图片，反推出一段可以直接用于AI绘画的详细英文提示词，描述画面主体、风格、构图、光线和色彩。只输出提示词本身。"
	analyzeInstruction = "请详细分析这张图片的内容，包括画面主体、场景、风格和值得注意的细节，用中文回答。"
)

// Bot wires the Telegram bot to the Gemini client and the session state
type Bot struct {
	config   *config.Config
	tgBot    *telebot.Bot
	client   *gemini.Client
	sessions *session.Store
	images   *storage.ImageStore
	router   *Router
	ctx      context.Context
	cancel   context.CancelFunc
}

// NewBot creates a new bot instance
func NewBot(cfg *config.Config, client *gemini.Client, sessions *session.Store, images *storage.ImageStore) *Bot {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bot{
		config:   cfg,
		client:   client,
		sessions: sessions,
		images:   images,
		router:   NewRouter(cfg.Commands),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SetTelegramBot sets the Telegram bot instance
func (b *Bot) SetTelegramBot(tgBot *telebot.Bot) {
	b.tgBot = tgBot
}

// Start registers message handlers
func (b *Bot) Start() {
	if b.tgBot == nil {
		log.Error("Telegram bot not set")
		return
	}

	b.tgBot.Handle(telebot.OnText, b.handleText)
	b.tgBot.Handle(telebot.OnPhoto, b.handlePhoto)
}

// Stop cancels in-flight handler work
func (b *Bot) Stop() {
	b.cancel()
}

// Sessions exposes the session store for the cleanup loop
func (b *Bot) Sessions() *session.Store {
	return b.sessions
}

// keyFor canonicalizes the sender/chat pair into a session key
func (b *Bot) keyFor(c telebot.Context) session.Key {
	isGroup := c.Chat().Type != telebot.ChatPrivate
	return session.KeyFor(c.Chat().ID, c.Sender().ID, isGroup)
}

// handleText routes a plain text message to the matching command handler
func (b *Bot) handleText(c telebot.Context) error {
	key := b.keyFor(c)
	match := b.router.Classify(c.Text(), b.sessions.Active(key))

	switch match.Command {
	case CmdExit:
		return b.handleExit(c, key)
	case CmdTranslate:
		return b.handleTranslateToggle(c, key)
	case CmdGenerate:
		if match.Prompt == "" {
			return c.Send(fmt.Sprintf("请提供描述内容，格式：%s [描述]", match.Prefix))
		}
		return b.handleGenerate(c, key, match.Prompt)
	case CmdEdit:
		if match.Prompt == "" {
			return c.Send(fmt.Sprintf("请提供编辑描述，格式：%s [描述]", match.Prefix))
		}
		return b.handleEdit(c, key, match.Prompt, nil)
	case CmdMerge:
		if match.Prompt == "" {
			return c.Send(fmt.Sprintf("请提供合成描述，格式：%s [描述]", match.Prefix))
		}
		return b.handleMerge(c, key, match.Prompt, nil)
	case CmdReverse:
		return b.handleDescribe(c, key, reverseInstruction, nil, "正在反推提示词，请稍候...")
	case CmdAnalyze:
		instruction := analyzeInstruction
		if match.Prompt != "" {
			instruction += "\n用户关注点：" + match.Prompt
		}
		return b.handleDescribe(c, key, instruction, nil, "正在解析图片，请稍候...")
	case CmdContinue:
		return b.handleContinue(c, key, match.Prompt)
	default:
		// Not addressed to this bot, pass through
		return nil
	}
}

// handlePhoto caches an uploaded image for later edit commands. A caption
// carrying a command is dispatched immediately with the attached image.
func (b *Bot) handlePhoto(c telebot.Context) error {
	photo := c.Message().Photo
	if photo == nil {
		return nil
	}

	data, err := b.downloadPhoto(photo)
	if err != nil {
		log.Errorf("Failed to download photo: %v", err)
		return nil
	}
	if len(data) < minImageBytes {
		log.Warnf("Ignoring undersized photo payload (%d bytes)", len(data))
		return nil
	}

	key := b.keyFor(c)
	b.sessions.CacheImage(key, data)
	log.Infof("Cached uploaded image for session %s (%d bytes)", key, len(data))

	caption := c.Message().Caption
	if caption == "" {
		// Cache silently, no reply
		return nil
	}

	match := b.router.Classify(caption, b.sessions.Active(key))
	switch match.Command {
	case CmdEdit:
		if match.Prompt == "" {
			return c.Send(fmt.Sprintf("请提供编辑描述，格式：%s [描述]", match.Prefix))
		}
		return b.handleEdit(c, key, match.Prompt, data)
	case CmdMerge:
		if match.Prompt == "" {
			return c.Send(fmt.Sprintf("请提供合成描述，格式：%s [描述]", match.Prefix))
		}
		return b.handleMerge(c, key, match.Prompt, data)
	case CmdReverse:
		return b.handleDescribe(c, key, reverseInstruction, data, "正在反推提示词，请稍候...")
	case CmdAnalyze:
		instruction := analyzeInstruction
		if match.Prompt != "" {
			instruction += "\n用户关注点：" + match.Prompt
		}
		return b.handleDescribe(c, key, instruction, data, "正在解析图片，请稍候...")
	default:
		return nil
	}
}

// handleGenerate creates a new image from a text prompt
func (b *Bot) handleGenerate(c telebot.Context, key session.Key, prompt string) error {
	if err := c.Send("正在生成图片，请稍候..."); err != nil {
		return err
	}

	prompt = b.maybeTranslate(key, prompt)
	history := b.historyContents(b.sessions.History(key))

	result, err := b.client.GenerateImage(b.ctx, string(key), prompt, history)
	if err != nil {
		log.Errorf("Image generation failed for session %s: %v", key, err)
		return c.Send(replyForError(err, "图片生成失败，请稍后再试或修改提示词"))
	}
	if result.Image == nil {
		if result.Text != "" {
			return c.Send(result.Text)
		}
		return c.Send("图片生成失败，请稍后再试或修改提示词")
	}

	replyText := result.Text
	if replyText == "" {
		replyText = "图片生成成功！"
	}
	firstExchange := len(history) == 0
	if firstExchange {
		replyText += fmt.Sprintf("（已开始图像对话，可以继续发送命令修改图片。需要结束时请发送\"%s\"）", b.config.Commands.Exit[0])
	}

	imagePath, err := b.images.SaveImage("gemini", result.Text, result.Image)
	if err != nil {
		log.Errorf("Failed to save generated image: %v", err)
		return c.Send(fmt.Sprintf("保存图片失败: %v", err))
	}

	b.sessions.SetLastImage(key, imagePath)
	b.sessions.AppendExchange(key,
		session.Turn{Role: session.RoleUser, Parts: []session.Part{{Text: prompt}}},
		session.Turn{Role: session.RoleModel, Parts: []session.Part{
			{Text: defaultText(result.Text, "我已生成了图片")},
			{ImagePath: imagePath},
		}},
	)

	return b.sendImageReply(c, replyText, imagePath)
}

// handleEdit modifies an image. The source cascades: attached photo, then the
// most recent cached upload, then the session's last generated image.
func (b *Bot) handleEdit(c telebot.Context, key session.Key, prompt string, attached []byte) error {
	source, sourcePath, ok := b.resolveEditSource(key, attached)
	if !ok {
		return c.Send("未找到可编辑的图片，请先上传一张图片或使用生成图片命令")
	}
	return b.editImage(c, key, prompt, source, sourcePath, "正在编辑图片，请稍候...")
}

// editImage runs one edit round against a fixed source image
func (b *Bot) editImage(c telebot.Context, key session.Key, prompt string, source []byte, sourcePath, ack string) error {
	if err := c.Send(ack); err != nil {
		return err
	}

	prompt = b.maybeTranslate(key, prompt)
	history := b.historyContents(b.sessions.History(key))

	result, err := b.client.EditImage(b.ctx, string(key), prompt, source, history)
	if err != nil {
		log.Errorf("Image edit failed for session %s: %v", key, err)
		return c.Send(replyForError(err, "图片编辑失败，请稍后再试或修改描述"))
	}
	if result.Image == nil {
		if result.Text != "" {
			return c.Send(result.Text)
		}
		return c.Send("图片编辑失败，请稍后再试或修改描述")
	}

	replyText := result.Text
	if replyText == "" {
		replyText = "图片编辑成功！"
	}
	firstExchange := len(history) == 0
	if firstExchange {
		replyText += fmt.Sprintf("（已开始图像对话，可以继续发送命令修改图片。需要结束时请发送\"%s\"）", b.config.Commands.Exit[0])
	}

	editedPath, err := b.images.SaveImage("edited", result.Text, result.Image)
	if err != nil {
		log.Errorf("Failed to save edited image: %v", err)
		return c.Send(fmt.Sprintf("保存图片失败: %v", err))
	}

	b.sessions.SetLastImage(key, editedPath)
	userParts := []session.Part{{Text: prompt}}
	if sourcePath != "" {
		userParts = append(userParts, session.Part{ImagePath: sourcePath})
	}
	b.sessions.AppendExchange(key,
		session.Turn{Role: session.RoleUser, Parts: userParts},
		session.Turn{Role: session.RoleModel, Parts: []session.Part{
			{Text: defaultText(result.Text, "我已编辑完成图片")},
			{ImagePath: editedPath},
		}},
	)

	return b.sendImageReply(c, replyText, editedPath)
}

// handleMerge combines at least two images into one
func (b *Bot) handleMerge(c telebot.Context, key session.Key, prompt string, attached []byte) error {
	var sources [][]byte
	if attached != nil {
		sources = append(sources, attached)
	}
	for _, img := range b.sessions.RecentImages(key) {
		sources = append(sources, img)
	}
	if len(sources) < 2 {
		// Fall back to the last generated image as the second input
		if path, ok := b.sessions.LastImage(key); ok {
			if data, err := b.images.ReadImage(path); err == nil {
				sources = append(sources, data)
			}
		}
	}
	if len(sources) < 2 {
		return c.Send("合成图片需要至少两张图片，请先发送需要合成的图片")
	}
	if len(sources) > 2 {
		sources = sources[:2]
	}

	if err := c.Send("正在合成图片，请稍候..."); err != nil {
		return err
	}

	prompt = b.maybeTranslate(key, prompt)

	result, err := b.client.MergeImages(b.ctx, string(key), prompt, sources)
	if err != nil {
		log.Errorf("Image merge failed for session %s: %v", key, err)
		return c.Send(replyForError(err, "图片合成失败，请稍后再试或修改描述"))
	}
	if result.Image == nil {
		if result.Text != "" {
			return c.Send(result.Text)
		}
		return c.Send("图片合成失败，请稍后再试或修改描述")
	}

	replyText := defaultText(result.Text, "图片合成成功！")
	mergedPath, err := b.images.SaveImage("merged", result.Text, result.Image)
	if err != nil {
		log.Errorf("Failed to save merged image: %v", err)
		return c.Send(fmt.Sprintf("保存图片失败: %v", err))
	}

	b.sessions.SetLastImage(key, mergedPath)
	b.sessions.AppendExchange(key,
		session.Turn{Role: session.RoleUser, Parts: []session.Part{{Text: prompt}}},
		session.Turn{Role: session.RoleModel, Parts: []session.Part{
			{Text: defaultText(result.Text, "我已合成了图片")},
			{ImagePath: mergedPath},
		}},
	)

	return b.sendImageReply(c, replyText, mergedPath)
}

// handleDescribe serves reverse-prompt and analyze: image in, text out
func (b *Bot) handleDescribe(c telebot.Context, key session.Key, instruction string, attached []byte, ack string) error {
	source, _, ok := b.resolveEditSource(key, attached)
	if !ok {
		return c.Send("未找到可解析的图片，请先上传一张图片或使用生成图片命令")
	}

	if err := c.Send(ack); err != nil {
		return err
	}

	result, err := b.client.DescribeImage(b.ctx, string(key), instruction, source)
	if err != nil {
		log.Errorf("Image description failed for session %s: %v", key, err)
		return c.Send(replyForError(err, "图片解析失败，请稍后再试"))
	}
	return c.Send(result.Text)
}

// handleContinue treats un-prefixed text as a further edit instruction
// against the session's last generated image. Cached uploads are not
// candidates here; they only feed explicit edit/merge commands.
func (b *Bot) handleContinue(c telebot.Context, key session.Key, text string) error {
	path, ok := b.sessions.LastImage(key)
	if !ok {
		return c.Send("未找到上一次生成的图片，请使用生成图片命令开始新的会话")
	}
	data, err := b.images.ReadImage(path)
	if err != nil {
		log.Warnf("Failed to read last image %s: %v", path, err)
		return c.Send("未找到上一次生成的图片，请使用生成图片命令开始新的会话")
	}
	return b.editImage(c, key, text, data, path, "正在处理您的请求，请稍候...")
}

// handleExit ends the conversation, removing all correlated session state
func (b *Bot) handleExit(c telebot.Context, key session.Key) error {
	if b.sessions.EndConversation(key) {
		return c.Send("已结束Gemini图像生成对话，下次需要时请使用命令重新开始")
	}
	return c.Send("您当前没有活跃的Gemini图像生成对话")
}

// handleTranslateToggle flips the per-session prompt translation flag
func (b *Bot) handleTranslateToggle(c telebot.Context, key session.Key) error {
	if b.sessions.ToggleTranslate(key, b.config.Gemini.TranslatePrompts) {
		return c.Send("已开启提示词翻译，中文描述将自动翻译成英文后再生成图片")
	}
	return c.Send("已关闭提示词翻译，描述将原样发送")
}

// resolveEditSource returns the image bytes to edit and, when the image came
// from a cached upload, the path it was persisted under for history replay
func (b *Bot) resolveEditSource(key session.Key, attached []byte) (data []byte, path string, ok bool) {
	source := attached
	if source == nil {
		if cached := b.sessions.RecentImages(key); len(cached) > 0 {
			source = cached[len(cached)-1]
		}
	}
	if source != nil {
		// Persist the upload so history replay can re-read it from disk.
		// The last-image pointer is left alone until the edit succeeds.
		savedPath, err := b.images.SaveImage("temp", "", source)
		if err != nil {
			log.Warnf("Failed to persist uploaded image: %v", err)
		} else {
			path = savedPath
		}
		return source, path, true
	}

	lastPath, ok := b.sessions.LastImage(key)
	if !ok {
		return nil, "", false
	}
	data, err := b.images.ReadImage(lastPath)
	if err != nil {
		log.Warnf("Failed to read last image %s: %v", lastPath, err)
		return nil, "", false
	}
	return data, lastPath, true
}

// maybeTranslate translates the prompt when the session has translation on
func (b *Bot) maybeTranslate(key session.Key, prompt string) string {
	if !b.sessions.TranslateEnabled(key, b.config.Gemini.TranslatePrompts) {
		return prompt
	}
	return b.client.Translate(b.ctx, string(key), prompt)
}

// historyContents converts stored turns into wire contents, re-reading and
// re-encoding referenced images since the upstream API is stateless
func (b *Bot) historyContents(turns []session.Turn) []gemini.Content {
	var contents []gemini.Content
	for _, turn := range turns {
		content := gemini.Content{Role: turn.Role}
		for _, part := range turn.Parts {
			switch {
			case part.Text != "":
				content.Parts = append(content.Parts, gemini.TextPart(part.Text))
			case part.ImagePath != "":
				data, err := b.images.ReadImage(part.ImagePath)
				if err != nil {
					log.Warnf("Skipping history image %s: %v", part.ImagePath, err)
					continue
				}
				content.Parts = append(content.Parts, gemini.ImagePart(data))
			}
		}
		if len(content.Parts) > 0 {
			contents = append(contents, content)
		}
	}
	return contents
}

// sendImageReply sends the reply text followed by the image attachment
func (b *Bot) sendImageReply(c telebot.Context, text, imagePath string) error {
	if err := c.Send(text); err != nil {
		log.Warnf("Failed to send reply text: %v", err)
	}
	photo := &telebot.Photo{File: telebot.FromDisk(imagePath)}
	return c.Send(photo)
}

// downloadPhoto fetches the raw bytes of an uploaded photo
func (b *Bot) downloadPhoto(photo *telebot.Photo) ([]byte, error) {
	rc, err := b.tgBot.File(&photo.File)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch photo file: %w", err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// replyForError maps a classified upstream error to the user-facing reply
func replyForError(err error, fallback string) string {
	apiErr, ok := err.(*gemini.APIError)
	if !ok {
		return fallback
	}
	switch apiErr.Kind {
	case gemini.KindSafety:
		return gemini.RejectionMessage(apiErr.Category)
	case gemini.KindAuth:
		return "API调用失败，请检查API密钥或代理服务配置"
	case gemini.KindQuota:
		return "API调用失败，请稍后再试或检查代理服务配置"
	case gemini.KindInvalid:
		return "API调用失败，请检查请求参数或网络连接"
	case gemini.KindMalformed:
		return "API响应格式错误，可能是代理服务配置问题。请检查代理服务实现或暂时禁用代理服务。"
	default:
		return fallback
	}
}

// defaultText returns text, or fallback when text is empty
func defaultText(text, fallback string) string {
	if text != "" {
		return text
	}
	return fallback
}
