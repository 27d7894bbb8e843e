// Package i18n holds the user-facing reply strings.
package i18n

import "fmt"

const (
	English = "en"
	Russian = "ru"
)

var catalogs = map[string]map[string]string{
	English: {
		"help_content":          "Hello",
		"help_embed":            "Ahhh!",
		"unknown_command":       "Unknown command",
		"user_needs_permission": "You must have the %s permission to use this command.",
		"permission_kick":       "Kick Members",
		"permission_ban":        "Ban Members",
		"bot_needs_kick":        "I need the Kick Members permission.",
		"bot_needs_ban":         "I need the Ban Members permission.",
		"forbidden_kick":        "I am not allowed to kick this member.",
		"forbidden_ban":         "I am not allowed to ban this member.",
		"forbidden_unban":       "I am not allowed to unban this user.",
		"kicked":                "User <@%s> was kicked.",
		"banned":                "User <@%s> was banned.",
		"unbanned":              "User <@%s> was unbanned.",
		"member_not_found":      "Could not find that member.",
		"unban_not_found":       "Could not find %s in the ban list.",
		"unban_ambiguous":       "More than one banned user matches %s. Please refine your query.",
		"generic_failure":       "Something went wrong.",
		"level_up":              "<@%s>\nCongratulations! You reached level %d!",
		"voice_left":            "%s left <#%s>",
		"voice_joined":          "%s connected to the <#%s>",
		"voice_moved":           "%s left <#%s> and connected to the <#%s>",
		"commands_failed":       "Cannot create commands for this server",
		"retry_label":           "Try again",
		"retry_success":         "Success",
		"retry_failure":         "Failed",
	},
	Russian: {
		"help_content":          "Привет",
		"help_embed":            "Ahhh!",
		"unknown_command":       "Неизвестная команда",
		"user_needs_permission": "У вас должно быть право %s, чтобы использовать эту команду.",
		"permission_kick":       "выгонять участников",
		"permission_ban":        "банить участников",
		"bot_needs_kick":        "Мне необходимо право кикать участников",
		"bot_needs_ban":         "Мне необходимо право банить участников",
		"forbidden_kick":        "Мне запрещено выгонять этого участника",
		"forbidden_ban":         "Мне запрещено банить этого участника",
		"forbidden_unban":       "Мне запрещено разбанить этого пользователя",
		"kicked":                "Пользователь <@%s> выгнан.",
		"banned":                "Пользователь <@%s> забанен.",
		"unbanned":              "Пользователь <@%s> разбанен.",
		"member_not_found":      "Не удалось найти участника",
		"unban_not_found":       "Не удалось найти %s в списке забаненных пользователей",
		"unban_ambiguous":       "Найдено более одного участника с именем %s. Уточните ваш запрос",
		"generic_failure":       "Что-то пошло не так",
		"level_up":              "<@%s>\nПоздравляем! Вы достигли %d уровня!",
		"voice_left":            "%s покинул(а) <#%s>",
		"voice_joined":          "%s подключился(ась) к <#%s>",
		"voice_moved":           "%s покинул(а) <#%s> и подключился(ась) к <#%s>",
		"commands_failed":       "Не могу создать команды для текущего сервера",
		"retry_label":           "Попробовать снова",
		"retry_success":         "Успешно",
		"retry_failure":         "Неудачно",
	},
}

// T formats the message for key in lang, falling back to English and then
// to the key itself.
func T(lang, key string, args ...any) string {
	format, ok := catalogs[lang][key]
	if !ok {
		format, ok = catalogs[English][key]
	}
	if !ok {
		return key
	}
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
